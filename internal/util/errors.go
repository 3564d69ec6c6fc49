package util

import "errors"

var (
	ErrCourseNotFound         = errors.New("course not found")
	ErrModuleNotFound         = errors.New("module not found")
	ErrModuleLocked           = errors.New("module locked: prerequisite not completed")
	ErrQuizOnCooldown         = errors.New("quiz on cooldown after failed attempt")
	ErrModuleAlreadyCompleted = errors.New("module already completed, retake not allowed")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrConcurrentModification = errors.New("concurrent modification of progress record")
	ErrCourseNotCompleted     = errors.New("course not completed")
)
