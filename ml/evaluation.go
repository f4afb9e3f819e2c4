package ml

import (
	"errors"
	"fmt"
	"strings"
)

type ClassReport struct {
	Label     int     `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Metrics summarises a binary evaluation. Precision, Recall and F1 refer to
// the positive (risk) class; Confusion is indexed [actual][predicted].
type Metrics struct {
	Accuracy  float64       `json:"accuracy"`
	Precision float64       `json:"precision"`
	Recall    float64       `json:"recall"`
	F1        float64       `json:"f1"`
	Confusion [2][2]int     `json:"confusion"`
	Classes   []ClassReport `json:"classes"`
	Support   int           `json:"support"`
}

// Evaluate predicts every row and compares with labels.
func Evaluate(model Classifier, features [][]float64, labels []int) (Metrics, error) {
	if len(features) != len(labels) {
		return Metrics{}, errors.New("features and labels size mismatch")
	}
	predicted := make([]int, len(features))
	for i, row := range features {
		label, err := model.Predict(row)
		if err != nil {
			return Metrics{}, fmt.Errorf("row %d: %w", i, err)
		}
		predicted[i] = label
	}
	return ComputeMetrics(labels, predicted)
}

func ComputeMetrics(actual, predicted []int) (Metrics, error) {
	if len(actual) == 0 {
		return Metrics{}, errors.New("nothing to evaluate")
	}
	if len(actual) != len(predicted) {
		return Metrics{}, errors.New("actual and predicted size mismatch")
	}

	var m Metrics
	correct := 0
	for i := range actual {
		a, p := actual[i], predicted[i]
		if a < 0 || a > 1 || p < 0 || p > 1 {
			return Metrics{}, fmt.Errorf("row %d: labels must be binary", i)
		}
		m.Confusion[a][p]++
		if a == p {
			correct++
		}
	}
	m.Support = len(actual)
	m.Accuracy = float64(correct) / float64(len(actual))

	for label := 0; label <= 1; label++ {
		tp := m.Confusion[label][label]
		predictedCount := m.Confusion[0][label] + m.Confusion[1][label]
		support := m.Confusion[label][0] + m.Confusion[label][1]
		report := ClassReport{Label: label, Support: support}
		if predictedCount > 0 {
			report.Precision = float64(tp) / float64(predictedCount)
		}
		if support > 0 {
			report.Recall = float64(tp) / float64(support)
		}
		if report.Precision+report.Recall > 0 {
			report.F1 = 2 * report.Precision * report.Recall / (report.Precision + report.Recall)
		}
		m.Classes = append(m.Classes, report)
	}
	m.Precision = m.Classes[1].Precision
	m.Recall = m.Classes[1].Recall
	m.F1 = m.Classes[1].F1
	return m, nil
}

// ConfusionMatrix renders the matrix with actual classes as rows.
func (m Metrics) ConfusionMatrix() string {
	return fmt.Sprintf("[[%d %d]\n [%d %d]]", m.Confusion[0][0], m.Confusion[0][1], m.Confusion[1][0], m.Confusion[1][1])
}

// Report renders a per-class table with macro and weighted averages.
func (m Metrics) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%14s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")
	var macro, weighted ClassReport
	for _, c := range m.Classes {
		fmt.Fprintf(&b, "%14d %10.2f %10.2f %10.2f %10d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
		macro.Precision += c.Precision / float64(len(m.Classes))
		macro.Recall += c.Recall / float64(len(m.Classes))
		macro.F1 += c.F1 / float64(len(m.Classes))
		w := float64(c.Support) / float64(m.Support)
		weighted.Precision += c.Precision * w
		weighted.Recall += c.Recall * w
		weighted.F1 += c.F1 * w
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%14s %10s %10s %10.2f %10d\n", "accuracy", "", "", m.Accuracy, m.Support)
	fmt.Fprintf(&b, "%14s %10.2f %10.2f %10.2f %10d\n", "macro avg", macro.Precision, macro.Recall, macro.F1, m.Support)
	fmt.Fprintf(&b, "%14s %10.2f %10.2f %10.2f %10d\n", "weighted avg", weighted.Precision, weighted.Recall, weighted.F1, m.Support)
	return b.String()
}
