package service

import "errors"

var (
	ErrBoardAlreadyStarted = errors.New("board already started")
	ErrBoardNotStarted     = errors.New("board not started")
)
