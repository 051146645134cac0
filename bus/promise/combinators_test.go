package promise_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x-research-team/dtx-mediator/bus/promise"
)

// Тест синхронного объединения уже завершенных промисов.
func TestAll_SettledInputs(t *testing.T) {
	t.Parallel()

	all := promise.All(promise.Resolve(1), promise.Resolve(2), promise.Resolve(3))

	require.True(t, all.Settled(), "Объединение завершенных промисов должно быть синхронным")
	values, err := all.Wait()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, values)
}

// Тест объединения ожидающих промисов с сохранением порядка.
func TestAll_PendingInputs(t *testing.T) {
	t.Parallel()

	first, resolveFirst, _ := promise.WithResolvers[string]()
	second, resolveSecond, _ := promise.WithResolvers[string]()

	all := promise.All(first, second)
	resolveSecond("b")
	resolveFirst("a")

	values, err := all.Wait()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, values)
}

// Тест отклонения объединения первой ошибкой.
func TestAll_Rejects(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	pending, _, reject := promise.WithResolvers[int]()
	other, _, _ := promise.WithResolvers[int]()

	all := promise.All(pending, other)
	reject(boom)

	_, err := all.Wait()
	require.ErrorIs(t, err, boom)

	other.Cancel()
}

// Тест пустого объединения.
func TestAll_Empty(t *testing.T) {
	t.Parallel()

	values, err := promise.All[int]().Wait()
	require.NoError(t, err)
	assert.NotNil(t, values)
	assert.Empty(t, values)
}

// Тест AllSettled: ошибки записываются по отдельности.
func TestAllSettled(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	pending, resolve, _ := promise.WithResolvers[int]()

	settled := promise.AllSettled(promise.Resolve(1), promise.Reject[int](boom), pending)
	assert.False(t, settled.Settled())
	resolve(3)

	outcomes, err := settled.Wait()
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, 1, outcomes[0].Value)
	assert.ErrorIs(t, outcomes[1].Err, boom)
	assert.Equal(t, 3, outcomes[2].Value)
}
