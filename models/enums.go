package models

import "errors"

type TransactionType string

const (
	TransactionTypeReceive   TransactionType = "RECEIVE"
	TransactionTypeShip      TransactionType = "SHIP"
	TransactionTypeAdjustIn  TransactionType = "ADJUST_IN"
	TransactionTypeAdjustOut TransactionType = "ADJUST_OUT"
	TransactionTypeTransfer  TransactionType = "TRANSFER"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeReceive, TransactionTypeShip, TransactionTypeAdjustIn,
		TransactionTypeAdjustOut, TransactionTypeTransfer:
		return true
	}
	return false
}

// Sign returns +1 for inbound types and -1 for outbound types.
// TRANSFER rows carry their own sign on the quantity and return 0 here.
func (t TransactionType) Sign() int {
	switch t {
	case TransactionTypeReceive, TransactionTypeAdjustIn:
		return 1
	case TransactionTypeShip, TransactionTypeAdjustOut:
		return -1
	}
	return 0
}

type CostCategory string

const (
	CostCategoryStorage     CostCategory = "Storage"
	CostCategoryHandlingIn  CostCategory = "HandlingIn"
	CostCategoryHandlingOut CostCategory = "HandlingOut"
	CostCategoryManagement  CostCategory = "Management"
)

func (c CostCategory) Valid() bool {
	switch c {
	case CostCategoryStorage, CostCategoryHandlingIn, CostCategoryHandlingOut, CostCategoryManagement:
		return true
	}
	return false
}

// MovementTypes returns the transaction types whose quantities form the basis
// for movement-priced (per-carton / per-pallet) rates in this category.
// Storage and Management are not movement-based and return nil.
func (c CostCategory) MovementTypes() []TransactionType {
	switch c {
	case CostCategoryHandlingIn:
		return []TransactionType{TransactionTypeReceive}
	case CostCategoryHandlingOut:
		return []TransactionType{TransactionTypeShip}
	}
	return nil
}

type UnitOfMeasure string

const (
	UnitPerCarton    UnitOfMeasure = "PerCarton"
	UnitPerPallet    UnitOfMeasure = "PerPallet"
	UnitPerPalletDay UnitOfMeasure = "PerPalletDay"
	UnitPerCartonDay UnitOfMeasure = "PerCartonDay"
	UnitFlat         UnitOfMeasure = "Flat"
)

func (u UnitOfMeasure) Valid() bool {
	switch u {
	case UnitPerCarton, UnitPerPallet, UnitPerPalletDay, UnitPerCartonDay, UnitFlat:
		return true
	}
	return false
}

// IsDuration reports whether the basis comes from the storage ledger
// (pallet-days / carton-days) rather than from movement quantities.
func (u UnitOfMeasure) IsDuration() bool {
	return u == UnitPerPalletDay || u == UnitPerCartonDay
}

type InvoiceStatus string

const (
	InvoiceStatusPending    InvoiceStatus = "Pending"
	InvoiceStatusReconciled InvoiceStatus = "Reconciled"
	InvoiceStatusDisputed   InvoiceStatus = "Disputed"
)

type ReconciliationStatus string

const (
	ReconciliationMatched            ReconciliationStatus = "MATCHED"
	ReconciliationOverBilled         ReconciliationStatus = "OVER_BILLED"
	ReconciliationUnderBilled        ReconciliationStatus = "UNDER_BILLED"
	ReconciliationMissingFromInvoice ReconciliationStatus = "MISSING_FROM_INVOICE"
	ReconciliationMissingFromCalc    ReconciliationStatus = "MISSING_FROM_CALCULATION"
)

// UserRole is a closed enum. Do not add role strings at call sites; extend the
// enum here and migrate existing rows in the same change.
type UserRole string

const (
	UserRoleAdmin    UserRole = "Admin"
	UserRoleOperator UserRole = "Operator"
)

func ParseUserRole(s string) (UserRole, error) {
	switch UserRole(s) {
	case UserRoleAdmin:
		return UserRoleAdmin, nil
	case UserRoleOperator:
		return UserRoleOperator, nil
	}
	return "", errors.New("invalid user role")
}
