package repository

import "errors"

var (
	ErrUserExists          = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrLastActiveAdmin     = errors.New("last active admin")
	ErrCargoNotFound       = errors.New("cargo not found")
	ErrTrackingNumberTaken = errors.New("tracking number already taken")
	ErrPricingRuleNotFound = errors.New("pricing rule not found")
)
