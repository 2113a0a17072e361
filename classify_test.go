package creditsync_test

import (
	"net/http"
	"testing"

	cs "github.com/ineyio/creditsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestClassifyLimitError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    cs.Classification
		ok      bool
	}{
		{
			name:    "korean store limit with counts",
			status:  http.StatusForbidden,
			message: "무료 플랜은 최대 1개의 매장만 등록할 수 있습니다. (현재: 1개)",
			want:    cs.Classification{Kind: cs.LimitStore, Current: ptr(1), Max: ptr(1)},
			ok:      true,
		},
		{
			name:    "keyword limit with slash pattern",
			status:  http.StatusForbidden,
			message: "키워드 등록 한도를 초과했습니다. (현재: 20개 / 최대 20개)",
			want:    cs.Classification{Kind: cs.LimitKeyword, Current: ptr(20), Max: ptr(20)},
			ok:      true,
		},
		{
			name:    "english tracker limit",
			status:  http.StatusForbidden,
			message: "Tracker limit reached (current: 5 / max 5)",
			want:    cs.Classification{Kind: cs.LimitTracker, Current: ptr(5), Max: ptr(5)},
			ok:      true,
		},
		{
			name:    "auto collection",
			status:  http.StatusForbidden,
			message: "자동 수집 기능은 베이직 이상에서 사용할 수 있습니다.",
			want:    cs.Classification{Kind: cs.LimitAutoCollection},
			ok:      true,
		},
		{
			name:    "generic upgrade language",
			status:  http.StatusForbidden,
			message: "이 기능을 사용하려면 업그레이드가 필요합니다.",
			want:    cs.Classification{Kind: cs.LimitFeature},
			ok:      true,
		},
		{
			name:    "current only",
			status:  http.StatusForbidden,
			message: "Store quota exhausted. current: 3",
			want:    cs.Classification{Kind: cs.LimitStore, Current: ptr(3)},
			ok:      true,
		},
		{
			name:    "korean ranking tracker mentions keywords",
			status:  http.StatusForbidden,
			message: "키워드 순위 추적은 최대 5개까지 가능합니다. (현재: 5개)",
			want:    cs.Classification{Kind: cs.LimitTracker, Current: ptr(5), Max: ptr(5)},
			ok:      true,
		},
		{
			name:    "english tracker mentions keywords",
			status:  http.StatusForbidden,
			message: "Tracker limit reached: keyword trackers max 5",
			want:    cs.Classification{Kind: cs.LimitTracker, Max: ptr(5)},
			ok:      true,
		},
		{
			name:    "auto collection mentions keywords and plan",
			status:  http.StatusForbidden,
			message: "자동 수집 키워드는 베이직 플랜부터 사용할 수 있습니다.",
			want:    cs.Classification{Kind: cs.LimitAutoCollection},
			ok:      true,
		},
		{
			name:    "english word inside another word",
			status:  http.StatusForbidden,
			message: "Forbidden: you cannot restore this review",
			ok:      false,
		},
		{
			name:    "plan inside explanation",
			status:  http.StatusForbidden,
			message: "Forbidden: see explanation in admin panel",
			ok:      false,
		},
		{
			name:    "planned maintenance",
			status:  http.StatusForbidden,
			message: "Access is paused during planned maintenance",
			ok:      false,
		},
		{
			name:    "english plural keywords",
			status:  http.StatusForbidden,
			message: "You can register at most 10 keywords",
			want:    cs.Classification{Kind: cs.LimitKeyword},
			ok:      true,
		},
		{
			name:    "forbidden without known language",
			status:  http.StatusForbidden,
			message: "권한이 없습니다.",
			ok:      false,
		},
		{
			name:    "not a forbidden status",
			status:  http.StatusBadRequest,
			message: "무료 플랜은 최대 1개의 매장만 등록할 수 있습니다.",
			ok:      false,
		},
		{
			name:    "payment required is not classified",
			status:  http.StatusPaymentRequired,
			message: "Please upgrade your plan",
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cs.ClassifyLimitError(tt.status, tt.message)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.Equal(t, cs.Classification{}, got)
				return
			}
			tt.want.RawMessage = tt.message
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyLimitError_FirstRuleWins(t *testing.T) {
	// Mentions both the plan and stores; store rule comes first.
	c, ok := cs.ClassifyLimitError(http.StatusForbidden, "Upgrade your plan to add more stores")
	require.True(t, ok)
	assert.Equal(t, cs.LimitStore, c.Kind)
}

func TestClassifyLimitError_Pure(t *testing.T) {
	msg := "키워드는 최대 10개까지 등록할 수 있습니다. (현재: 10개)"

	a, okA := cs.ClassifyLimitError(http.StatusForbidden, msg)
	b, okB := cs.ClassifyLimitError(http.StatusForbidden, msg)

	assert.Equal(t, okA, okB)
	assert.Equal(t, a, b)
	// Distinct pointers, so a caller mutating one result cannot affect another.
	require.NotNil(t, a.Current)
	*a.Current = 99
	assert.Equal(t, int64(10), *b.Current)
}

func TestRules_Order(t *testing.T) {
	rules := cs.Rules()
	kinds := make([]cs.LimitKind, len(rules))
	for i, r := range rules {
		kinds[i] = r.Kind
	}
	assert.Equal(t, []cs.LimitKind{
		cs.LimitStore, cs.LimitTracker, cs.LimitAutoCollection, cs.LimitKeyword, cs.LimitFeature,
	}, kinds)
}
