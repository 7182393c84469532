package token

import "errors"

var (
	ErrTokenNotFound         = errors.New("token: token not registered")
	ErrTokenExists           = errors.New("token: token already registered")
	ErrNotMintable           = errors.New("token: token not mintable")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrNegativeAmount        = errors.New("token: negative amount")
)
