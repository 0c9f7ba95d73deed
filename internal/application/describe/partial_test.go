package describe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-copy-api/internal/domain/entity"
)

func TestParsePartial(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		ok     bool
		expect []entity.Description
	}{
		{name: "no object yet", text: "Sure! Here", ok: false},
		{name: "open brace", text: "{", ok: true, expect: nil},
		{name: "partial key", text: `{"descri`, ok: true, expect: nil},
		{name: "key without value", text: `{"descriptions":`, ok: true, expect: nil},
		{name: "empty array", text: `{"descriptions":[`, ok: true, expect: []entity.Description{}},
		{name: "empty item", text: `{"descriptions":[{`, ok: true, expect: []entity.Description{{}}},
		{
			name:   "partial name",
			text:   `{"descriptions":[{"name":"Focus Ti`,
			ok:     true,
			expect: []entity.Description{{Name: "Focus Ti"}},
		},
		{
			name:   "name done, description key partial",
			text:   `{"descriptions":[{"name":"Focus Timer","desc`,
			ok:     true,
			expect: []entity.Description{{Name: "Focus Timer"}},
		},
		{
			name:   "partial description with escape",
			text:   `{"descriptions":[{"name":"A","description":"line\nnext \"quo`,
			ok:     true,
			expect: []entity.Description{{Name: "A", Description: "line\nnext \"quo"}},
		},
		{
			name:   "dangling backslash is dropped",
			text:   `{"descriptions":[{"name":"A","description":"ab\`,
			ok:     true,
			expect: []entity.Description{{Name: "A", Description: "ab"}},
		},
		{
			name:   "partial unicode escape is dropped",
			text:   `{"descriptions":[{"name":"caf\u00`,
			ok:     true,
			expect: []entity.Description{{Name: "caf"}},
		},
		{
			name:   "high surrogate waits for its pair",
			text:   `{"descriptions":[{"name":"go \ud83d`,
			ok:     true,
			expect: []entity.Description{{Name: "go "}},
		},
		{
			name:   "complete surrogate pair",
			text:   `{"descriptions":[{"name":"go 🚀`,
			ok:     true,
			expect: []entity.Description{{Name: "go 🚀"}},
		},
		{
			name: "second item started",
			text: `{"descriptions":[{"name":"A","description":"a"},{"name":"B`,
			ok:   true,
			expect: []entity.Description{
				{Name: "A", Description: "a"},
				{Name: "B"},
			},
		},
		{
			name:   "leading prose and code fence",
			text:   "```json\n{\"descriptions\":[{\"name\":\"A\"}]}\n```",
			ok:     true,
			expect: []entity.Description{{Name: "A"}},
		},
		{
			name:   "wrongly typed name is treated as absent",
			text:   `{"descriptions":[{"name":42,"description":"x"}]}`,
			ok:     true,
			expect: []entity.Description{{Description: "x"}},
		},
		{
			name:   "partial number is dropped",
			text:   `{"descriptions":[{"name":"A","rank":1`,
			ok:     true,
			expect: []entity.Description{{Name: "A"}},
		},
		{name: "garbage after brace", text: `{]`, ok: false},
		{
			name:   "braces in preamble are skipped",
			text:   "Sure {here} it is: ```json\n{\"descriptions\":[{\"name\":\"Foc",
			ok:     true,
			expect: []entity.Description{{Name: "Foc"}},
		},
		{
			name:   "object with descriptions wins over earlier object",
			text:   `{"note":"draft"} {"descriptions":[{"name":"A"`,
			ok:     true,
			expect: []entity.Description{{Name: "A"}},
		},
		{name: "preamble brace only", text: "Sure {here", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePartial(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expect, got)
			}
		})
	}
}

func TestParsePartial_TruncatedMultibyteRune(t *testing.T) {
	full := `{"descriptions":[{"name":"Café`
	// 截掉 é 的最后一个字节
	got, ok := ParsePartial(full[:len(full)-1])
	require.True(t, ok)
	assert.Equal(t, []entity.Description{{Name: "Caf"}}, got)
}

// 对象前带说明文字时，真正的对象一出现就能逐步展示
func TestParsePartial_SkipsPreambleProgressively(t *testing.T) {
	body := `{"descriptions":[{"name":"Focus Timer","description":"Stay on task."}]}`
	text := "Sure {here} it is: ```json\n" + body + "\n```"
	objStart := len(text) - len(body) - len("\n```")

	var state []entity.Description
	revealed := -1
	for i := 1; i <= len(text); i++ {
		got, ok := ParsePartial(text[:i])
		if !ok {
			continue
		}
		state = Merge(state, got)
		if revealed < 0 && len(state) > 0 && state[0].Name != "" {
			revealed = i
		}
	}

	require.Greater(t, revealed, objStart)
	assert.Less(t, revealed, len(body)+objStart, "name should appear before the object completes")
	assert.Equal(t, []entity.Description{{Name: "Focus Timer", Description: "Stay on task."}}, state)

	got, ok := ParsePartial(text)
	require.True(t, ok)
	assert.Equal(t, state, got)
}

// 逐字节回放完整输出，验证每个下标的值只增不减，最终与完整解析一致
func TestParsePartial_PrefixesNeverRegress(t *testing.T) {
	final := entity.GenerationResult{Descriptions: []entity.Description{
		{Name: "Focus Timer Pro ⏱", Description: "Stay on task.\n✅ Pomodoro\n✅ \"Deep\" mode"},
		{Name: "Ship Faster", Description: "Built for remote teams… less noise, more flow."},
		{Name: "Calm Productivity", Description: "Grab it today 🚀"},
	}}
	raw, err := json.MarshalIndent(final, "", "  ")
	require.NoError(t, err)
	text := "Here you go:\n" + string(raw)

	var state []entity.Description
	for i := 1; i <= len(text); i++ {
		next, ok := ParsePartial(text[:i])
		if !ok {
			continue
		}
		merged := Merge(state, next)

		require.GreaterOrEqual(t, len(merged), len(state), "prefix %d", i)
		for j := range state {
			assert.True(t, hasPrefix(merged[j].Name, state[j].Name), "name regressed at prefix %d", i)
			assert.True(t, hasPrefix(merged[j].Description, state[j].Description), "description regressed at prefix %d", i)
		}
		state = merged
	}

	assert.Equal(t, final.Descriptions, state)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func TestMerge(t *testing.T) {
	current := []entity.Description{{Name: "Focus", Description: "Stay"}, {Name: "B"}}

	t.Run("extends values", func(t *testing.T) {
		got := Merge(current, []entity.Description{{Name: "Focus Timer", Description: "Stay on"}})
		assert.Equal(t, []entity.Description{{Name: "Focus Timer", Description: "Stay on"}, {Name: "B"}}, got)
	})

	t.Run("rejects non-prefix rewrite", func(t *testing.T) {
		got := Merge(current, []entity.Description{{Name: "Other"}, {Name: ""}})
		assert.Equal(t, current, got)
	})

	t.Run("appends new items", func(t *testing.T) {
		got := Merge(current, []entity.Description{{Name: "Focus"}, {Name: "B2"}, {Name: "C"}})
		assert.Len(t, got, 3)
		assert.Equal(t, "B2", got[1].Name)
		assert.Equal(t, "C", got[2].Name)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		_ = Merge(current, []entity.Description{{Name: "Focus Timer"}})
		assert.Equal(t, "Focus", current[0].Name)
	})
}
