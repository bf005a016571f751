// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of crypto-toolkit.
//
// crypto-toolkit is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	// Metrics should be enabled by default
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordOperation(t *testing.T) {
	Enable()

	OperationsTotal.Reset()
	OperationDuration.Reset()

	RecordOperation(OpFinishLogin, StatusSuccess, 0.05)

	count := testutil.CollectAndCount(OperationsTotal)
	if count != 1 {
		t.Errorf("Expected 1 operation recorded, got %d", count)
	}

	histCount := testutil.CollectAndCount(OperationDuration)
	if histCount != 1 {
		t.Errorf("Expected 1 histogram sample, got %d", histCount)
	}

	RecordOperation(OpPasswordLogin, StatusError, 0.1)

	count = testutil.CollectAndCount(OperationsTotal)
	if count != 2 {
		t.Errorf("Expected 2 operations recorded, got %d", count)
	}
}

func TestRecordOperationWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	OperationsTotal.Reset()

	RecordOperation(OpRegister, StatusSuccess, 0.5)

	count := testutil.CollectAndCount(OperationsTotal)
	if count != 0 {
		t.Errorf("Expected 0 operations when disabled, got %d", count)
	}
}

func TestRecordError(t *testing.T) {
	Enable()

	ErrorsTotal.Reset()

	RecordError(OpFinishLogin, "counter_regression")

	count := testutil.CollectAndCount(ErrorsTotal)
	if count != 1 {
		t.Errorf("Expected 1 error recorded, got %d", count)
	}

	RecordError(OpFinishRegister, "challenge_expired")

	count = testutil.CollectAndCount(ErrorsTotal)
	if count != 2 {
		t.Errorf("Expected 2 errors recorded, got %d", count)
	}
}

func TestRecordChallengeMetrics(t *testing.T) {
	Enable()

	ChallengesIssued.Reset()
	ChallengesConsumed.Reset()

	RecordChallengeIssued("registration")
	RecordChallengeIssued("authentication")
	RecordChallengeConsumed("authentication", ResultConsumed)
	RecordChallengeConsumed("authentication", ResultReplayed)

	if got := testutil.CollectAndCount(ChallengesIssued); got != 2 {
		t.Errorf("Expected 2 issued series, got %d", got)
	}
	if got := testutil.CollectAndCount(ChallengesConsumed); got != 2 {
		t.Errorf("Expected 2 consumed series, got %d", got)
	}

	replayed := testutil.ToFloat64(ChallengesConsumed.WithLabelValues("authentication", ResultReplayed))
	if replayed != 1 {
		t.Errorf("Expected 1 replayed consumption, got %f", replayed)
	}
}

func TestRecordChallengeMetricsWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	ChallengesIssued.Reset()

	RecordChallengeIssued("registration")

	if got := testutil.CollectAndCount(ChallengesIssued); got != 0 {
		t.Errorf("Expected 0 issued series when disabled, got %d", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	Enable()

	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "200", 0.02)
	RecordHTTPRequest("POST", "401", 0.01)

	if got := testutil.CollectAndCount(HTTPRequestsTotal); got != 2 {
		t.Errorf("Expected 2 request series, got %d", got)
	}
}
