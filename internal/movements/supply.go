package movements

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-backoffice/internal/inventory"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

// CreateSupplyRequest stores a PENDING supply request.
func (s *Service) CreateSupplyRequest(ctx context.Context, in CreateSupplyRequestInput) (SupplyRequest, error) {
	if err := in.validate(); err != nil {
		return SupplyRequest{}, err
	}
	req := SupplyRequest{
		CompanyID:         in.CompanyID,
		Reference:         s.refs.Next(shared.PrefixSupplyRequest),
		SourceWarehouseID: in.SourceWarehouseID,
		Destination:       in.Destination,
		CompanyBearsCosts: in.CompanyBearsCosts,
		Status:            SupplyPending,
		Note:              in.Note,
		CreatedBy:         in.ActorID,
		CreatedAt:         s.now().UTC(),
	}
	for _, item := range in.Items {
		req.Items = append(req.Items, SupplyItem{ProductID: item.ProductID, UnitCost: item.UnitCost, QuantityRequested: item.Quantity})
	}
	var created SupplyRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertSupplyRequest(ctx, req)
		return err
	})
	if err != nil {
		return SupplyRequest{}, err
	}
	return created, nil
}

// ApproveSupplyRequest moves a PENDING request to APPROVED.
func (s *Service) ApproveSupplyRequest(ctx context.Context, companyID, actorID, requestID int64) (SupplyRequest, error) {
	return s.supplyStep(ctx, companyID, actorID, requestID, shared.ApprovalApprove, "", func(ctx context.Context, r *SupplyRequest, now time.Time) error {
		if r.Status != SupplyPending {
			return fmt.Errorf("%w: approve requires PENDING, got %s", ErrInvalidState, r.Status)
		}
		r.Status = SupplyApproved
		r.Approved = stamp(actorID, now)
		return nil
	})
}

// RejectSupplyRequest moves a PENDING request to REJECTED.
func (s *Service) RejectSupplyRequest(ctx context.Context, companyID, actorID, requestID int64, reason string) (SupplyRequest, error) {
	return s.supplyStep(ctx, companyID, actorID, requestID, shared.ApprovalReject, reason, func(ctx context.Context, r *SupplyRequest, now time.Time) error {
		if r.Status != SupplyPending {
			return fmt.Errorf("%w: reject requires PENDING, got %s", ErrInvalidState, r.Status)
		}
		r.Status = SupplyRejected
		r.Rejected = stamp(actorID, now)
		r.RejectReason = reason
		return nil
	})
}

// DeliverSupplyRequest moves the goods of an APPROVED request. Requests sourced from a
// warehouse transfer stock out of it; supplier requests enter stock at the destination.
// Items default to their requested quantity.
func (s *Service) DeliverSupplyRequest(ctx context.Context, in StepInput) (SupplyRequest, error) {
	return s.supplyStep(ctx, in.CompanyID, in.ActorID, in.DocumentID, shared.ApprovalDeliver, "", func(ctx context.Context, r *SupplyRequest, now time.Time) error {
		if r.Status != SupplyApproved {
			return fmt.Errorf("%w: deliver requires APPROVED, got %s", ErrInvalidState, r.Status)
		}
		overrides, err := quantities(in.Items, supplyLimits(r.Items, func(item SupplyItem) int64 { return item.QuantityRequested }))
		if err != nil {
			return err
		}
		for _, i := range byProduct(r.Items, supplyProduct) {
			item := &r.Items[i]
			qty := item.QuantityRequested
			if o, ok := overrides[item.ID]; ok {
				qty = o.Quantity
			}
			item.QuantityDelivered = qty
			if qty == 0 {
				continue
			}
			movement := inventory.MovementInput{
				CompanyID:       r.CompanyID,
				ActorID:         in.ActorID,
				Type:            inventory.MovementPurchaseEntry,
				ProductID:       item.ProductID,
				Quantity:        qty,
				Destination:     &r.Destination,
				SupplyRequestID: &r.ID,
				UnitCost:        item.UnitCost,
				Note:            r.Reference,
			}
			if !r.FromSupplier() {
				src := inventory.Warehouse(*r.SourceWarehouseID)
				movement.Type = inventory.MovementInternalTransfer
				movement.Source = &src
			}
			if _, err := s.stock.RecordMovement(ctx, movement); err != nil {
				return err
			}
		}
		r.Status = SupplyDelivered
		r.Delivered = stamp(in.ActorID, now)
		return nil
	})
}

// ReceiveSupplyRequest records the reception check of a DELIVERED request. Stock was
// moved at delivery, so only quantities and discrepancy notes are stored.
func (s *Service) ReceiveSupplyRequest(ctx context.Context, in StepInput) (SupplyRequest, error) {
	return s.supplyStep(ctx, in.CompanyID, in.ActorID, in.DocumentID, shared.ApprovalReceive, "", func(ctx context.Context, r *SupplyRequest, now time.Time) error {
		if r.Status != SupplyDelivered || r.Received.Done() {
			return fmt.Errorf("%w: receive requires an unreceived DELIVERED request, got %s", ErrInvalidState, r.Status)
		}
		overrides, err := quantities(in.Items, supplyLimits(r.Items, func(item SupplyItem) int64 { return item.QuantityDelivered }))
		if err != nil {
			return err
		}
		for i := range r.Items {
			item := &r.Items[i]
			item.QuantityReceived = item.QuantityDelivered
			note := ""
			if o, ok := overrides[item.ID]; ok {
				item.QuantityReceived = o.Quantity
				note = o.Note
			}
			item.DiscrepancyNote = discrepancy(note, item.QuantityReceived, item.QuantityDelivered)
		}
		r.Received = stamp(in.ActorID, now)
		return nil
	})
}

// GetSupplyRequest loads a supply request with its items.
func (s *Service) GetSupplyRequest(ctx context.Context, companyID, requestID int64) (SupplyRequest, error) {
	var req SupplyRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetSupplyRequest(ctx, companyID, requestID)
		return err
	})
	return req, err
}

func (s *Service) supplyStep(ctx context.Context, companyID, actorID, requestID int64, action shared.ApprovalAction, note string,
	apply func(context.Context, *SupplyRequest, time.Time) error) (SupplyRequest, error) {
	now := s.now().UTC()
	var updated SupplyRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSupplyRequestForUpdate(ctx, companyID, requestID)
		if err != nil {
			return err
		}
		if err := apply(ctx, &current, now); err != nil {
			return err
		}
		if err := tx.UpdateSupplyRequest(ctx, current); err != nil {
			return err
		}
		if err := s.logStep(ctx, moduleSupplyRequest, companyID, current.ID, actorID, action, note, now); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return SupplyRequest{}, err
	}
	s.transitioned(moduleSupplyRequest, action, companyID, requestID, actorID)
	return updated, nil
}

func supplyLimits(items []SupplyItem, limit func(SupplyItem) int64) map[int64]int64 {
	limits := make(map[int64]int64, len(items))
	for _, item := range items {
		limits[item.ID] = limit(item)
	}
	return limits
}

func supplyProduct(item SupplyItem) int64 { return item.ProductID }
