package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"gavel/auction"
	"gavel/models"
)

// runArchiveWorker 從consumer group消費引擎事件並寫入資料庫。
// 事件處理失敗會Reject進dead-letter stream，不會卡住後面的事件。
func (s *Server) runArchiveWorker(ctx context.Context) {
	logger := slog.Default().With(slog.String("caller", "ArchiveWorker"))
	defer slog.Info("Event archive worker stopped")
	ch := s.archiver.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			logger.Debug("Receive event",
				slog.String("type", string(msg.Data.Type)),
				slog.Uint64("auctionID", msg.Data.AuctionID))
			handleErr := s.archiveEvent(msg.Data, msg.EntryID())
			if handleErr != nil {
				logger.Error("Fail to archive event", slog.Any("error", handleErr))
				if err := msg.Reject(ctx, handleErr); err != nil {
					logger.Error("Fail to reject message", slog.Any("error", err))
				}
				continue
			}
			if err := msg.Ack(ctx); err != nil {
				logger.Error("Archive success but fail to ack message", slog.Any("error", err))
				if err := msg.Reject(ctx, err); err != nil {
					logger.Error("Archive success but fail to reject message", slog.Any("error", err))
				}
				continue
			}
			logger.Debug("Archive success")
		}
	}
}

// archiveEvent 把單一引擎事件轉寫成資料庫紀錄。
// 寫入都做成冪等的：拍賣與撥款靠業務鍵的OnConflict，
// 出價與信用異動靠stream條目ID去重，訊息重送不會產生重複資料。
func (s *Server) archiveEvent(ev auction.Event, sourceID string) error {
	switch ev.Type {
	case auction.EventAuctionCreated:
		snap, err := s.house.Get(ev.AuctionID)
		if err != nil {
			return fmt.Errorf("fail to load auction snapshot, err=%w", err)
		}
		record := models.Auction{
			EngineID:          snap.ID,
			SellerID:          snap.Seller,
			Kind:              snap.Kind.String(),
			Title:             snap.Title,
			Description:       snap.Description,
			StartPrice:        snap.StartPrice,
			ReservePrice:      snap.ReservePrice,
			PriceDecrement:    snap.PriceDecrement,
			DecrementInterval: int64(snap.DecrementInterval / time.Second),
			StartTime:         snap.StartTime,
			EndTime:           snap.EndTime,
			Status:            snap.Status.String(),
		}
		if result := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "engine_id"}},
			DoNothing: true,
		}).Create(&record); result.Error != nil {
			return fmt.Errorf("fail to create auction record, err=%w", result.Error)
		}

	case auction.EventBidPlaced:
		bid := models.Bid{
			AuctionEngineID: ev.AuctionID,
			BidderID:        ev.Actor,
			Amount:          ev.Amount,
			PlacedAt:        ev.At,
			SourceID:        sourceID,
		}
		if result := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}},
			DoNothing: true,
		}).Create(&bid); result.Error != nil {
			return fmt.Errorf("fail to create bid record, err=%w", result.Error)
		}
		if ev.RefundedAccount != nil {
			if err := s.appendCreditEntry(ev, sourceID, *ev.RefundedAccount, int64(ev.RefundedAmount), models.CreditReasonOutbid); err != nil {
				return err
			}
		}

	case auction.EventAuctionEnded:
		snap, err := s.house.Get(ev.AuctionID)
		if err != nil {
			return fmt.Errorf("fail to load auction snapshot, err=%w", err)
		}
		updates := map[string]any{
			"status":      snap.Status.String(),
			"sold":        ev.Sold,
			"final_price": ev.Amount,
		}
		if snap.Winner != nil {
			updates["winner_id"] = *snap.Winner
		}
		if result := s.db.Model(&models.Auction{}).Where("engine_id = ?", ev.AuctionID).Updates(updates); result.Error != nil {
			return fmt.Errorf("fail to update auction record, err=%w", result.Error)
		}
		if ev.Sold {
			disbursement := models.Disbursement{
				AuctionEngineID: ev.AuctionID,
				SellerID:        snap.Seller,
				Amount:          ev.SellerProceeds,
				Fee:             ev.Fee,
				SettledAt:       ev.At,
			}
			if result := s.db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "auction_engine_id"}},
				DoNothing: true,
			}).Create(&disbursement); result.Error != nil {
				return fmt.Errorf("fail to create disbursement record, err=%w", result.Error)
			}
			// 荷蘭拍的買斷沒有獨立的出價事件，成交時補一筆出價紀錄
			if ev.Kind == auction.KindDutch {
				bid := models.Bid{
					AuctionEngineID: ev.AuctionID,
					BidderID:        ev.Actor,
					Amount:          ev.Amount,
					PlacedAt:        ev.At,
					SourceID:        sourceID,
				}
				if result := s.db.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "source_id"}},
					DoNothing: true,
				}).Create(&bid); result.Error != nil {
					return fmt.Errorf("fail to create purchase bid record, err=%w", result.Error)
				}
			}
		} else if ev.RefundedAccount != nil {
			if err := s.appendCreditEntry(ev, sourceID, *ev.RefundedAccount, int64(ev.RefundedAmount), models.CreditReasonReserveNotMet); err != nil {
				return err
			}
		}

	case auction.EventAuctionCancelled:
		if result := s.db.Model(&models.Auction{}).
			Where("engine_id = ?", ev.AuctionID).
			Update("status", auction.StatusCancelled.String()); result.Error != nil {
			return fmt.Errorf("fail to update cancelled auction, err=%w", result.Error)
		}

	case auction.EventBidWithdrawn:
		if err := s.appendCreditEntry(ev, sourceID, ev.Actor, -int64(ev.Amount), models.CreditReasonWithdrawal); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown event type: %s", ev.Type)
	}
	return nil
}

func (s *Server) appendCreditEntry(ev auction.Event, sourceID string, account uuid.UUID, amount int64, reason string) error {
	entry := models.CreditEntry{
		AccountID:       account,
		AuctionEngineID: ev.AuctionID,
		Amount:          amount,
		Reason:          reason,
		OccurredAt:      ev.At,
		SourceID:        sourceID,
	}
	if result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}},
		DoNothing: true,
	}).Create(&entry); result.Error != nil {
		return fmt.Errorf("fail to create credit entry, reason=%s, err=%w", reason, result.Error)
	}
	return nil
}
