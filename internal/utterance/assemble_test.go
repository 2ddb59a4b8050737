package utterance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssembleNormalizesWhitespaceAndSentenceCase(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{" who is", "the narrator.", "\nand why"}, Options{CapitalizeSentences: true})
	require.Equal(t, "Who is the narrator. And why", got)
}

func TestAssembleWithoutFormatting(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{"who is", "the narrator"}, Options{})
	require.Equal(t, "who is the narrator", got)
}

func TestAssembleEmptyInput(t *testing.T) {
	t.Parallel()

	require.Empty(t, Assemble(nil, Options{CapitalizeSentences: true, QuestionMark: true}))
	require.Empty(t, Assemble([]string{"  ", "\n\t"}, Options{CapitalizeSentences: true, QuestionMark: true}))
}

func TestAssembleCapitalizesPronounI(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{"when i read it i'm lost. i think i missed a chapter."}, Options{CapitalizeSentences: true})
	require.Equal(t, "When I read it I'm lost. I think I missed a chapter.", got)
}

func TestAssembleKeepsDecimalsAndAbbreviations(t *testing.T) {
	t.Parallel()

	got := Assemble([]string{"chapter 3.5 mentions e.g. the river"}, Options{CapitalizeSentences: true})
	require.Equal(t, "Chapter 3.5 mentions e.g. The river", got)
}

func TestAssembleAppendsQuestionMark(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "interrogative", in: "who is the narrator", want: "Who is the narrator?"},
		{name: "already punctuated", in: "who is the narrator.", want: "Who is the narrator."},
		{name: "statement", in: "tell me about the narrator", want: "Tell me about the narrator"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Assemble([]string{tc.in}, Options{CapitalizeSentences: true, QuestionMark: true})
			require.Equal(t, tc.want, got)
		})
	}
}

func TestAssembleIdempotentForNormalizedOutput(t *testing.T) {
	t.Parallel()

	opts := Options{CapitalizeSentences: true, QuestionMark: true}
	first := Assemble([]string{"what happens in chapter two"}, opts)
	second := Assemble([]string{first}, opts)
	require.Equal(t, first, second)
}
