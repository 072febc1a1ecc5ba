package observers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the workflow collectors. A nil *Metrics records nothing.
type Metrics struct {
	NodeTransitions *prometheus.CounterVec
	Answers         *prometheus.CounterVec
	AnswerDuration  prometheus.Histogram
	LLMTokens       *prometheus.CounterVec
	LLMCost         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_node_transitions_total",
				Help: "Workflow states entered, by node",
			},
			[]string{"node"},
		),
		Answers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_answers_total",
				Help: "Answered questions by terminal outcome and route",
			},
			[]string{"outcome", "route"},
		),
		AnswerDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_answer_duration_seconds",
				Help:    "Time to answer one question",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
			},
		),
		LLMTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_llm_tokens_total",
				Help: "Language model tokens by model and kind (prompt, completion)",
			},
			[]string{"model", "kind"},
		),
		LLMCost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_llm_cost_usd_total",
				Help: "Estimated language model cost in USD",
			},
			[]string{"model"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.NodeTransitions, m.Answers, m.AnswerDuration, m.LLMTokens, m.LLMCost)
	}
	return m
}

func (m *Metrics) observeNode(node string) {
	if m == nil || node == "" {
		return
	}
	m.NodeTransitions.WithLabelValues(node).Inc()
}

// ObserveAnswer records one terminal outcome.
func (m *Metrics) ObserveAnswer(outcome, route string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Answers.WithLabelValues(outcome, route).Inc()
	m.AnswerDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeUsage(model string, prompt, completion int, cost float64) {
	if m == nil {
		return
	}
	m.LLMTokens.WithLabelValues(model, "prompt").Add(float64(prompt))
	m.LLMTokens.WithLabelValues(model, "completion").Add(float64(completion))
	m.LLMCost.WithLabelValues(model).Add(cost)
}
