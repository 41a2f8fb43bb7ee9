package inference

import (
	"testing"

	"github.com/TrapLineAI/trapline/pkg/intel"
)

func TestHeuristicRisk(t *testing.T) {
	e := intel.NewExtractor([]string{"urgent", "otp", "verify"})

	tests := []struct {
		name string
		text string
		want RiskLevel
	}{
		{"artifact plus keyword", "URGENT pay test@upi", RiskHigh},
		{"keyword only", "urgent please respond", RiskMedium},
		{"artifact only", "my id is test@upi", RiskMedium},
		{"benign stays at floor", "see you tomorrow", RiskMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HeuristicRisk(e.Scan(tt.text)); got != tt.want {
				t.Errorf("HeuristicRisk(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}
