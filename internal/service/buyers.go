package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/c010r/backyardbarpass/internal/errors"
	"github.com/c010r/backyardbarpass/internal/models"
	"github.com/c010r/backyardbarpass/internal/repository"
)

type BuyerService struct {
	buyerRepo repository.BuyerStore
}

func NewBuyerService(buyerRepo repository.BuyerStore) *BuyerService {
	return &BuyerService{buyerRepo: buyerRepo}
}

// UpsertProfile stores the holder data printed on the door validation screen
func (s *BuyerService) UpsertProfile(ctx context.Context, userID int64, req *models.UpsertProfileRequest) (*models.Buyer, error) {
	buyer := &models.Buyer{
		ID:        userID,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Document:  strings.TrimSpace(req.Document),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     req.Phone,
	}
	if buyer.FirstName == "" || buyer.Document == "" || buyer.Email == "" {
		return nil, fmt.Errorf("%w: first_name, document and email are required", apperrors.ErrValidation)
	}

	if err := s.buyerRepo.Upsert(ctx, buyer); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return buyer, nil
}

func (s *BuyerService) GetProfile(ctx context.Context, userID int64) (*models.Buyer, error) {
	buyer, err := s.buyerRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if buyer == nil {
		return nil, fmt.Errorf("profile: %w", apperrors.ErrNotFound)
	}
	return buyer, nil
}
