package mediator_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Тест: фильтр логирования записывает вызов и ошибку обработчика.
func TestMediator_LoggingFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := mediator.New(mediator.WithLogger(logger), mediator.WithHandlers(&HandlerA{}, &Exploder{}))

	_, err := mediator.Execute(m, Foo{Name: "лог"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "вызов обработчика")
	assert.Contains(t, buf.String(), "mediator_test.Foo")

	_, err = mediator.Execute(m, Explode{})
	require.ErrorIs(t, err, errExplode)
	assert.Contains(t, buf.String(), "ошибка обработчика")
	assert.Contains(t, buf.String(), errExplode.Error())
}

// Тест: фильтр метрик считает вызовы членов.
func TestMediator_MetricsFilter(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m := mediator.New(
		mediator.WithLogger(discardLogger()),
		mediator.WithMeterProvider(mp),
		mediator.WithHandlers(&HandlerA{}),
	)
	_, err := mediator.Execute(m, Foo{})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	metrics := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			metrics[md.Name] = md.Data
		}
	}

	count, ok := metrics["mediator.dispatch.count"].(metricdata.Sum[int64])
	require.True(t, ok, "Счетчик вызовов должен быть зарегистрирован")
	require.Len(t, count.DataPoints, 1)
	assert.Equal(t, int64(1), count.DataPoints[0].Value)
	status, _ := count.DataPoints[0].Attributes.Value("status")
	assert.Equal(t, "success", status.AsString())

	_, ok = metrics["mediator.process.duration"].(metricdata.Histogram[float64])
	assert.True(t, ok, "Гистограмма длительности должна быть зарегистрирована")
}

// Тест: отказ члена учитывается отдельно от ошибок.
func TestMediator_MetricsFilter_Declined(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m := mediator.New(
		mediator.WithLogger(discardLogger()),
		mediator.WithMeterProvider(mp),
		mediator.WithHandlers(&Picky{}, &HandlerA{}),
	)
	_, err := mediator.Execute(m, Foo{Name: "чужой"})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	statuses := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "mediator.dispatch.count" {
				continue
			}
			count, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range count.DataPoints {
				status, _ := dp.Attributes.Value("status")
				statuses[status.AsString()] += dp.Value
			}
		}
	}

	assert.Equal(t, map[string]int64{"declined": 1, "success": 1}, statuses)
}

// Тест: фильтр трассировки создает спан и продолжает трассу из метаданных команды.
func TestMediator_TracingFilter(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	m := mediator.New(
		mediator.WithLogger(discardLogger()),
		mediator.WithTracerProvider(tp),
		mediator.WithHandlers(&HandlerA{}, &TracedHandler{}, &Exploder{}),
	)

	_, err := mediator.Execute(m, Foo{})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "mediator_test.Foo process", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("callback.type", "mediator_test.Foo"))

	parentCtx, parent := tp.Tracer("test").Start(context.Background(), "родитель")
	md := map[string]string{}
	propagation.TraceContext{}.Inject(parentCtx, propagation.MapCarrier(md))
	parent.End()

	_, err = mediator.Execute(m, Traced{md: md})
	require.NoError(t, err)

	var traced sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "mediator_test.Traced process" {
			traced = s
		}
	}
	require.NotNil(t, traced, "Спан команды с метаданными должен быть записан")
	assert.Equal(t, parent.SpanContext().TraceID(), traced.SpanContext().TraceID(), "Трасса должна продолжаться")
	assert.Equal(t, parent.SpanContext().SpanID(), traced.Parent().SpanID())

	_, err = mediator.Execute(m, Explode{})
	require.Error(t, err)
	ended := recorder.Ended()
	assert.Equal(t, codes.Error, ended[len(ended)-1].Status().Code, "Ошибка должна отмечаться в спане")
}

// Тест: медиатор без зависимостей наблюдаемости и изменение набора обработчиков.
func TestMediator_Handlers(t *testing.T) {
	t.Parallel()

	counter := &countingFilter{}
	m := mediator.New(
		mediator.WithLogger(discardLogger()),
		mediator.WithFilters(mediator.UseFilters(counter)),
	)
	require.NotNil(t, m.Logger())

	_, err := mediator.Execute(m, Foo{})
	var notHandled *mediator.NotHandledError
	require.ErrorAs(t, err, &notHandled)

	a := &HandlerA{}
	m.Add(a)
	require.Len(t, m.Handlers(), 1)

	result, err := mediator.Execute(m, Foo{})
	require.NoError(t, err)
	assert.Equal(t, "A", result)
	assert.Equal(t, int32(1), counter.calls.Load(), "Фильтры медиатора применяются ко всем вызовам")

	m.Remove(a)
	assert.Empty(t, m.Handlers())
}
