package judge

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestVerdict_Public(t *testing.T) {
	cases := []TestCase{
		{Input: "1", Output: "2"},
		{Input: "secret", Output: "hidden answer", IsHidden: true},
	}
	v := Verdict{
		Kind: WrongAnswer,
		Results: []TestCaseResult{
			{Input: "1", Expected: "2", Actual: "2", Passed: true},
			{Input: "secret", Expected: "hidden answer", Actual: "nope", Passed: false},
		},
	}

	pub := v.Public(cases)
	if pub.Results[0] != v.Results[0] {
		t.Errorf("visible result changed: %+v", pub.Results[0])
	}
	if pub.Results[1] != (TestCaseResult{}) {
		t.Errorf("hidden result = %+v, want values blanked", pub.Results[1])
	}
	if v.Results[1].Input != "secret" {
		t.Error("Public must not modify the original verdict")
	}

	if got := (Verdict{Kind: TimeLimitExceeded}).Public(cases); got.Results != nil {
		t.Errorf("Public() invented results: %+v", got.Results)
	}
}

func TestVerdict_JSON(t *testing.T) {
	data, err := json.Marshal(failure(CompilationError, "Compilation failed"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"kind":"COMPILATION_ERROR","message":"Compilation failed"}` {
		t.Errorf("Marshal = %s, want optional fields omitted", data)
	}

	v := Verdict{Kind: Accepted, RuntimeMS: int64Ptr(0), MemoryKB: int64Ptr(0), Results: []TestCaseResult{{Passed: true}}}
	data, err = json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"runtime_ms":0`) || !strings.Contains(string(data), `"memory_kb":0`) {
		t.Errorf("Marshal = %s, want zero measurements kept", data)
	}
}

func TestTestCase_Decode(t *testing.T) {
	var tc TestCase
	if err := json.Unmarshal([]byte(`{"input":"[1,2]","output":"3","is_hidden":true}`), &tc); err != nil {
		t.Fatal(err)
	}
	if tc.Input != "[1,2]" || tc.Output != "3" || !tc.IsHidden {
		t.Errorf("decoded %+v", tc)
	}
}
