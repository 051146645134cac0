package command

import "context"

// Command представляет собой интерфейс-маркер для команды, параметризованный
// типом возвращаемого значения R.
// Каждая команда - это уникальный запрос на выполнение операции.
type Command[R any] interface{}

// CommandHandler определяет строго типизированную функцию-обработчик для команды C,
// которая возвращает результат типа R.
type CommandHandler[C Command[R], R any] func(ctx context.Context, cmd C) (R, error)

// Middleware определяет тип функции-декоратора для CommandHandler.
// Сквозная функциональность уровня шины (логирование, метрики, трассировка)
// подключается фильтрами медиатора; middleware оборачивает только обработчик.
type Middleware[C Command[R], R any] func(next CommandHandler[C, R]) CommandHandler[C, R]
