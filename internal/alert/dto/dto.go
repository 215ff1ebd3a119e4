package dto

import "github.com/shopkit/inventory-service/internal/model"

type CreateAlertInput struct {
	VariantID    string
	ProductID    string
	VariantName  string
	CurrentStock int
	Threshold    int
	Type         model.AlertType
}

type AlertFilters struct {
	VariantID string
	ProductID string
	Type      model.AlertType
	Resolved  *bool
	Page      int
	PageSize  int
}
