// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять администратору понятные сообщения.
package common

import "errors"

// Ошибки извлечения стола
var (
	// ErrMalformedTable — из текста не собрался стол (меньше 2 игроков или нет ставки)
	ErrMalformedTable = errors.New("некорректный стол: нужно минимум 2 игрока и строка со ставкой")
	// ErrStakeOutOfRange — ставка нулевая, отрицательная или выше потолка
	ErrStakeOutOfRange = errors.New("ставка вне допустимого диапазона")
)

// Ошибки реестра и жизненного цикла столов
var (
	// ErrDuplicateGame — по этому сообщению уже есть активный стол
	ErrDuplicateGame = errors.New("по этому сообщению уже открыт активный стол")
	// ErrGameNotFound — правка или кнопка ссылается на несуществующий стол
	ErrGameNotFound = errors.New("стол не найден")
	// ErrGameNotActive — операция допустима только для активного стола
	ErrGameNotActive = errors.New("стол уже не активен")
	// ErrAlreadySettled — повторное объявление победителя; расчёт не повторяется
	ErrAlreadySettled = errors.New("стол уже рассчитан")
	// ErrAlreadyCancelled — отменять стол второй раз нельзя
	ErrAlreadyCancelled = errors.New("стол уже отменён")
)

// Ошибки определения победителя
var (
	// ErrWinnerNotFound — ни одна строка с галочкой не привязалась к игроку стола
	ErrWinnerNotFound = errors.New("победитель не распознан среди игроков стола")
	// ErrUnknownPlayer — игрок не имеет записи в базе, списывать не с кого
	ErrUnknownPlayer = errors.New("игрок без записи в базе")
)

// Ошибки леджера и пользователей
var (
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrInvalidCommission — ставка комиссии вне диапазона 0..100%
	ErrInvalidCommission = errors.New("комиссия должна быть в диапазоне от 0 до 100")
)

// Ошибки доступа
var (
	// ErrNotAdmin — пользователь не входит в список администраторов
	ErrNotAdmin = errors.New("команда доступна только администраторам")
)
