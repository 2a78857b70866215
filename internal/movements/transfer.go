package movements

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-backoffice/internal/inventory"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

// CreateTransfer stores a PENDING transfer.
func (s *Service) CreateTransfer(ctx context.Context, in CreateTransferInput) (Transfer, error) {
	if err := in.validate(); err != nil {
		return Transfer{}, err
	}
	t := Transfer{
		CompanyID:         in.CompanyID,
		Reference:         s.refs.Next(shared.PrefixTransfer),
		SourceWarehouseID: in.SourceWarehouseID,
		Destination:       in.Destination,
		VehicleID:         in.VehicleID,
		DriverID:          in.DriverID,
		CompanyBearsCosts: in.CompanyBearsCosts,
		Status:            TransferPending,
		Note:              in.Note,
		CreatedBy:         in.ActorID,
		CreatedAt:         s.now().UTC(),
	}
	for _, item := range in.Items {
		t.Items = append(t.Items, TransferItem{ProductID: item.ProductID, UnitCost: item.UnitCost, QuantityRequested: item.Quantity})
	}
	var created Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertTransfer(ctx, t)
		return err
	})
	if err != nil {
		return Transfer{}, err
	}
	return created, nil
}

// ApproveTransfer moves a PENDING transfer to APPROVED.
func (s *Service) ApproveTransfer(ctx context.Context, companyID, actorID, transferID int64) (Transfer, error) {
	return s.transferStep(ctx, companyID, actorID, transferID, shared.ApprovalApprove, "", func(ctx context.Context, t *Transfer, now time.Time) error {
		if t.Status != TransferPending {
			return fmt.Errorf("%w: approve requires PENDING, got %s", ErrInvalidState, t.Status)
		}
		t.Status = TransferApproved
		t.Approved = stamp(actorID, now)
		return nil
	})
}

// RejectTransfer moves a PENDING transfer to REJECTED.
func (s *Service) RejectTransfer(ctx context.Context, companyID, actorID, transferID int64, reason string) (Transfer, error) {
	return s.transferStep(ctx, companyID, actorID, transferID, shared.ApprovalReject, reason, func(ctx context.Context, t *Transfer, now time.Time) error {
		if t.Status != TransferPending {
			return fmt.Errorf("%w: reject requires PENDING, got %s", ErrInvalidState, t.Status)
		}
		t.Status = TransferRejected
		t.Rejected = stamp(actorID, now)
		t.RejectReason = reason
		return nil
	})
}

// ShipTransfer takes the goods of an APPROVED transfer out of the source warehouse.
// Warehouse destinations are credited at once; shops are credited on reception.
func (s *Service) ShipTransfer(ctx context.Context, in StepInput) (Transfer, error) {
	return s.transferStep(ctx, in.CompanyID, in.ActorID, in.DocumentID, shared.ApprovalShip, "", func(ctx context.Context, t *Transfer, now time.Time) error {
		if t.Status != TransferApproved {
			return fmt.Errorf("%w: ship requires APPROVED, got %s", ErrInvalidState, t.Status)
		}
		overrides, err := quantities(in.Items, transferLimits(t.Items, func(item TransferItem) int64 { return item.QuantityRequested }))
		if err != nil {
			return err
		}
		src := t.Source()
		for _, i := range byProduct(t.Items, transferProduct) {
			item := &t.Items[i]
			qty := item.QuantityRequested
			if o, ok := overrides[item.ID]; ok {
				qty = o.Quantity
			}
			item.QuantityShipped = qty
			if qty == 0 {
				continue
			}
			movement := inventory.MovementInput{
				CompanyID:   t.CompanyID,
				ActorID:     in.ActorID,
				Type:        inventory.MovementStoreTransfer,
				ProductID:   item.ProductID,
				Quantity:    qty,
				Source:      &src,
				Destination: &t.Destination,
				TransferID:  &t.ID,
				UnitCost:    item.UnitCost,
				Note:        t.Reference,
			}
			if t.Destination.Kind == inventory.LocationWarehouse {
				movement.Type = inventory.MovementInternalTransfer
			}
			if _, err := s.stock.RecordMovement(ctx, movement); err != nil {
				return err
			}
		}
		t.Status = TransferShipped
		t.Shipped = stamp(in.ActorID, now)
		return nil
	})
}

// MarkTransferDelivered records the hand over of a SHIPPED transfer.
func (s *Service) MarkTransferDelivered(ctx context.Context, companyID, actorID, transferID int64) (Transfer, error) {
	return s.transferStep(ctx, companyID, actorID, transferID, shared.ApprovalDeliver, "", func(ctx context.Context, t *Transfer, now time.Time) error {
		if t.Status != TransferShipped {
			return fmt.Errorf("%w: deliver requires SHIPPED, got %s", ErrInvalidState, t.Status)
		}
		t.Status = TransferDelivered
		t.Delivered = stamp(actorID, now)
		return nil
	})
}

// ReceiveTransfer closes a SHIPPED or DELIVERED transfer. Shop destinations are
// credited with the received quantities; items default to the shipped quantity.
func (s *Service) ReceiveTransfer(ctx context.Context, in StepInput) (Transfer, error) {
	return s.transferStep(ctx, in.CompanyID, in.ActorID, in.DocumentID, shared.ApprovalReceive, "", func(ctx context.Context, t *Transfer, now time.Time) error {
		if t.Status != TransferShipped && t.Status != TransferDelivered {
			return fmt.Errorf("%w: receive requires SHIPPED or DELIVERED, got %s", ErrInvalidState, t.Status)
		}
		overrides, err := quantities(in.Items, transferLimits(t.Items, func(item TransferItem) int64 { return item.QuantityShipped }))
		if err != nil {
			return err
		}
		for _, i := range byProduct(t.Items, transferProduct) {
			item := &t.Items[i]
			item.QuantityReceived = item.QuantityShipped
			note := ""
			if o, ok := overrides[item.ID]; ok {
				item.QuantityReceived = o.Quantity
				note = o.Note
			}
			item.DiscrepancyNote = discrepancy(note, item.QuantityReceived, item.QuantityShipped)
			if t.Destination.Kind != inventory.LocationShop || item.QuantityReceived == 0 {
				continue
			}
			if _, err := s.stock.RecordMovement(ctx, inventory.MovementInput{
				CompanyID:   t.CompanyID,
				ActorID:     in.ActorID,
				Type:        inventory.MovementStoreReception,
				ProductID:   item.ProductID,
				Quantity:    item.QuantityReceived,
				Destination: &t.Destination,
				TransferID:  &t.ID,
				UnitCost:    item.UnitCost,
				Note:        t.Reference,
			}); err != nil {
				return err
			}
		}
		if !t.Delivered.Done() {
			t.Delivered = stamp(in.ActorID, now)
		}
		t.Status = TransferReceived
		t.Received = stamp(in.ActorID, now)
		return nil
	})
}

// GetTransfer loads a transfer with its items.
func (s *Service) GetTransfer(ctx context.Context, companyID, transferID int64) (Transfer, error) {
	var t Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		t, err = tx.GetTransfer(ctx, companyID, transferID)
		return err
	})
	return t, err
}

func (s *Service) transferStep(ctx context.Context, companyID, actorID, transferID int64, action shared.ApprovalAction, note string,
	apply func(context.Context, *Transfer, time.Time) error) (Transfer, error) {
	now := s.now().UTC()
	var updated Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransferForUpdate(ctx, companyID, transferID)
		if err != nil {
			return err
		}
		if err := apply(ctx, &current, now); err != nil {
			return err
		}
		if err := tx.UpdateTransfer(ctx, current); err != nil {
			return err
		}
		if err := s.logStep(ctx, moduleTransfer, companyID, current.ID, actorID, action, note, now); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.transitioned(moduleTransfer, action, companyID, transferID, actorID)
	return updated, nil
}

func transferLimits(items []TransferItem, limit func(TransferItem) int64) map[int64]int64 {
	limits := make(map[int64]int64, len(items))
	for _, item := range items {
		limits[item.ID] = limit(item)
	}
	return limits
}

func transferProduct(item TransferItem) int64 { return item.ProductID }
