package application

import (
	"fmt"
	"strings"

	"github.com/escalopa/quizzr-dataflow/internal/domain"
)

const (
	vttHeader  = "WEBVTT Kind: captions; Language: en"
	speakerTag = "<v Speaker X>"
)

// AlignmentToVTT renders the successfully aligned words of an alignment as a
// WebVTT caption track, one upper-cased word per cue
func AlignmentToVTT(alignment *domain.Alignment) string {
	var sb strings.Builder
	sb.WriteString(vttHeader)
	for _, word := range alignment.Words {
		if !word.Success() {
			continue
		}
		sb.WriteString("\n\n")
		sb.WriteString(secondsToTimestamp(word.Start))
		sb.WriteString(" --> ")
		sb.WriteString(secondsToTimestamp(word.End))
		sb.WriteString("\n")
		sb.WriteString(speakerTag)
		sb.WriteString(strings.ToUpper(word.Word))
	}
	return sb.String()
}

// secondsToTimestamp formats seconds as 00:MM:SS[.ffffff], dropping the
// fractional part when it is zero
func secondsToTimestamp(seconds float64) string {
	micros := int64(seconds*1e6) % 1_000_000
	whole := int64(seconds)
	minutes := (whole / 60) % 60
	secs := whole % 60
	if micros == 0 {
		return fmt.Sprintf("00:%02d:%02d", minutes, secs)
	}
	return fmt.Sprintf("00:%02d:%02d.%06d", minutes, secs, micros)
}
