package query

import (
	"context"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
)

// Query представляет собой интерфейс-маркер для запроса, параметризованный
// типом возвращаемого значения R.
// Каждый запрос - это уникальный, идемпотентный запрос на получение данных.
type Query[R any] interface{}

// QueryHandler определяет строго типизированную функцию-обработчик для запроса Q,
// которая возвращает результат типа R.
type QueryHandler[Q Query[R], R any] func(ctx context.Context, q Q) (R, error)

// Middleware оборачивает QueryHandler.
type Middleware[Q Query[R], R any] func(next QueryHandler[Q, R]) QueryHandler[Q, R]

// Metadatable определяет интерфейс для запросов, которые несут метаданные.
// Фильтр трассировки медиатора извлекает из них родительский контекст.
type Metadatable = mediator.Metadatable
