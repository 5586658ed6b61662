package domain

import "errors"

var (
	// ErrNotFound возвращается, когда запись отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrConflict возвращается при нарушении уникальности.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable возвращается, когда хранилище недоступно.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrInvalidStatus возвращается для неизвестного статуса пользователя.
	ErrInvalidStatus = errors.New("invalid user status")
	// ErrInvalidPeriod возвращается для неизвестного периода отчёта.
	ErrInvalidPeriod = errors.New("invalid report period")
	// ErrBanned возвращается для заблокированного пользователя.
	ErrBanned = errors.New("user is banned")
	// ErrEmptyURL возвращается, если ссылка пустая.
	ErrEmptyURL = errors.New("empty url")
	// ErrInvalidCaptions возвращается для значения подписей, отличного от on/off.
	ErrInvalidCaptions = errors.New("invalid captions value")
)
