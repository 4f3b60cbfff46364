package extractor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kennygrant/sanitize"

	"github.com/go-scripts/examcrawl/internal/types"
)

// QuestionID derives the stable id of the number-th question of a topic:
// {subject}_{topic-path}_p{page}_{number}. Every segment is lower-cased and
// filesystem safe, and "_" only ever appears between segments, so the same
// source position always produces the same id.
func QuestionID(target types.QuestionPageTarget, number int) string {
	subject := segment(target.Topic.SubjectName)
	if subject == "" {
		subject = "subject"
	}
	return fmt.Sprintf("%s_%s_p%d_%d", subject, topicPath(target.Topic.TopicURL), target.PageNumber, number)
}

func topicPath(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if s := segment(p); s != "" {
		return s
	}
	return "topic"
}

// segment lower-cases s and makes it file name safe. Path separators, dots,
// underscores and whitespace all become "-".
func segment(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), "-")
	return strings.Trim(sanitize.BaseName(s), "-")
}
