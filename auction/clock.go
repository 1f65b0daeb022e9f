package auction

import "time"

// Clock 提供拍賣引擎的時間來源
// 「目前時間」不是從牆上時鐘偷讀的環境值，而是注入的依賴，
// 讓荷蘭式拍賣的價格計算與截止時間判斷可以在測試中完全確定
type Clock func() time.Time

// SystemClock 直接使用系統時間
func SystemClock() time.Time {
	return time.Now()
}
