/*
 * Copyright (c) 2026 Laminar Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errs

import (
	"strings"
	"testing"
)

func TestLaminarErrorBasic(t *testing.T) {
	err := ConsensusErr("vote request rejected")
	if err.Code != CodeConsensus {
		t.Errorf("expected code %d, got %d", CodeConsensus, err.Code)
	}
	if err.Category != CategoryConsensus {
		t.Errorf("expected category %s, got %s", CategoryConsensus, err.Category)
	}
	if !strings.Contains(err.Error(), "vote request rejected") {
		t.Errorf("expected error to contain message, got %s", err.Error())
	}
}

func TestLaminarErrorWithDetailAndHint(t *testing.T) {
	err := LeaderCompletenessViolation(7).WithHint("wait for the new term to commit an entry")
	if !strings.Contains(err.Error(), "term 7") {
		t.Errorf("expected detail in Error(), got %s", err.Error())
	}
	msg := err.UserMessage()
	if !strings.Contains(msg, "HINT:") {
		t.Errorf("expected HINT in user message, got %s", msg)
	}
}

func TestLaminarErrorWithCauseUnwraps(t *testing.T) {
	cause := ProtocolErr("socket closed")
	wrapped := IOErr(cause)
	if wrapped.Unwrap() != cause {
		t.Errorf("expected Unwrap() to return the wrapped cause")
	}
}

func TestCategoryPredicates(t *testing.T) {
	if !IsConsensusError(StaleTerm(1, 2)) {
		t.Errorf("expected StaleTerm to be a consensus error")
	}
	if !IsProjectorError(UnknownTopic("orders")) {
		t.Errorf("expected UnknownTopic to be a projector error")
	}
	if !IsValidationError(PayloadTooLarge(99999)) {
		t.Errorf("expected PayloadTooLarge to be a validation error")
	}
	if IsConsensusError(nil) {
		t.Errorf("expected nil error to not be a consensus error")
	}
}

func TestGetCode(t *testing.T) {
	if GetCode(QuorumLost()) != CodeQuorumLost {
		t.Errorf("expected GetCode to return CodeQuorumLost")
	}
	if GetCode(nil) != 0 {
		t.Errorf("expected GetCode(nil) == 0")
	}
}
