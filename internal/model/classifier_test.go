package model

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"epochforge/internal/nn"
	"epochforge/internal/optim"
)

func TestClassifierTrainStepReducesLoss(t *testing.T) {
	net, err := NewClassifier(ClassifierConfig{Inputs: 4, Hidden: []int{8}, Classes: 3}, 1)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	opt, err := optim.NewSGD(net.Parameters(), 0.1, 0)
	if err != nil {
		t.Fatalf("NewSGD: %v", err)
	}
	batch := Batch{
		Features: mat.NewDense(2, 4, []float64{
			0.1, 0.2, 0.3, 0.4,
			0.4, 0.3, 0.2, 0.1,
		}),
		Labels: []int{1, 2},
	}
	step := func() float64 {
		logits, err := net.Forward(batch.Features, nn.ModeTrain)
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		loss, grad, err := nn.CrossEntropy{}.ValueGrad(logits, batch.Labels)
		if err != nil {
			t.Fatalf("loss: %v", err)
		}
		if err := net.Backward(grad); err != nil {
			t.Fatalf("backward: %v", err)
		}
		if err := opt.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
		opt.ZeroGrad()
		return loss
	}
	loss1 := step()
	loss2 := step()
	loss3 := step()
	if loss2 > loss1 || loss3 > loss2 {
		t.Fatalf("expected loss to decrease; %f %f %f", loss1, loss2, loss3)
	}
}

func TestNewClassifierLayout(t *testing.T) {
	net, err := NewClassifier(ClassifierConfig{Inputs: 784, Hidden: []int{512, 512}, Classes: 10, Dropout: 0.1}, 1)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	types := []string{"linear", "relu", "dropout", "linear", "relu", "dropout", "linear"}
	specs := net.Specs()
	if len(specs) != len(types) {
		t.Fatalf("expected %d layers, got %d", len(types), len(specs))
	}
	for i, typ := range types {
		if specs[i].Type != typ {
			t.Fatalf("layer %d is %s, want %s", i, specs[i].Type, typ)
		}
	}
	if _, err := NewClassifier(ClassifierConfig{Inputs: 4, Classes: 1}, 1); err == nil {
		t.Fatalf("expected error for a single class")
	}
}

func TestPredictArgMax(t *testing.T) {
	net, err := NewClassifier(ClassifierConfig{Inputs: 2, Classes: 2}, 3)
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	w := net.Parameters()[0].Value
	w.Copy(mat.NewDense(2, 2, []float64{1, 0, 0, 1}))
	net.Parameters()[1].Value.Zero()
	got, err := Predict(net, mat.NewDense(2, 2, []float64{3, 1, 0, 2}))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got[0] != 0 || got[1] != 1 {
		t.Fatalf("unexpected predictions %v", got)
	}
}
