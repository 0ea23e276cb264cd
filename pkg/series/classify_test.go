package series

import (
	"errors"
	"testing"

	"tidycensus/pkg/census"
)

func TestClassifyDefaultsToIntensive(t *testing.T) {
	class, err := Classify([]string{"pop", "median_income"}, []string{"pop"}, false)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if class["pop"] != census.Extensive {
		t.Fatalf("pop should be extensive")
	}
	if class["median_income"] != census.Intensive {
		t.Fatalf("unlisted variable should default to intensive")
	}
}

func TestClassifyStrictUnknown(t *testing.T) {
	_, err := Classify([]string{"pop"}, []string{"pop", "households"}, true)
	if err == nil {
		t.Fatalf("expected error for unknown extensive variable")
	}
	var unknown census.UnknownVariableError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownVariableError, got %T", err)
	}
	if unknown.Variable != "households" {
		t.Fatalf("unexpected variable %q", unknown.Variable)
	}
}

func TestClassifyLenientIgnoresUnknown(t *testing.T) {
	class, err := Classify([]string{"pop"}, []string{"pop", "households"}, false)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if _, ok := class["households"]; ok {
		t.Fatalf("unknown variable should not be added to classification")
	}
	if class["pop"] != census.Extensive {
		t.Fatalf("pop should be extensive")
	}
}
