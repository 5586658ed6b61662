package domain

import (
	"fmt"
	"strings"
)

// UserStatus описывает состояние пользователя.
type UserStatus string

const (
	UserStatusUnset    UserStatus = ""
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusBanned   UserStatus = "ban"
)

// ParseStatus приводит строку к статусу пользователя.
// Сервис пользователей проверяет им любой входящий статус, включая начальный.
// Хранилище при этом принимает начальный статус как есть, поэтому у старых
// записей могут встречаться значения вне набора; Counts считает их неактивными.
func ParseStatus(raw string) (UserStatus, error) {
	switch s := UserStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case UserStatusUnset, UserStatusActive, UserStatusInactive, UserStatusBanned:
		return s, nil
	case "banned":
		return UserStatusBanned, nil
	default:
		return UserStatusUnset, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// Valid сообщает, входит ли статус в допустимый набор.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusUnset, UserStatusActive, UserStatusInactive, UserStatusBanned:
		return true
	}
	return false
}

// IsActive сообщает, считается ли пользователь активным в статистике.
// Всё, что не равно active (включая ban), считается неактивным.
func (s UserStatus) IsActive() bool {
	return s == UserStatusActive
}

func (s UserStatus) String() string {
	if s == UserStatusUnset {
		return "unset"
	}
	return string(s)
}

const (
	CaptionsOn  = "on"
	CaptionsOff = "off"
)

// ToggleCaptions возвращает противоположное значение настройки подписей.
func ToggleCaptions(current string) string {
	if strings.EqualFold(strings.TrimSpace(current), CaptionsOn) {
		return CaptionsOff
	}
	return CaptionsOn
}
