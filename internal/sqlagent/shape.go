package sqlagent

import (
	"regexp"
	"strconv"
	"strings"
)

const scanLimit = 10

// Shape is one of the read patterns the agent is willing to execute. The
// generated statement only selects a shape; its text never reaches the
// database.
type Shape interface {
	Name() string
}

type ShapeScan struct {
	Limit int
}

type ShapeCount struct{}

type ShapeLookup struct {
	ID int64
}

type ShapeUnrecognized struct{}

func (ShapeScan) Name() string         { return "scan" }
func (ShapeCount) Name() string        { return "count" }
func (ShapeLookup) Name() string       { return "lookup" }
func (ShapeUnrecognized) Name() string { return "unrecognized" }

var idPattern = regexp.MustCompile(`id\s*=\s*(\d+)`)

// RecognizeShape checks, in order, for a scan of applicant_info, a count,
// then an equality on id. A statement that is both a scan and a count, such
// as "SELECT COUNT(*) FROM applicant_info", is a scan.
func RecognizeShape(statement string) Shape {
	lowered := strings.ToLower(statement)

	switch {
	case strings.Contains(lowered, "select") && strings.Contains(lowered, "from applicant_info"):
		return ShapeScan{Limit: scanLimit}
	case strings.Contains(lowered, "count"):
		return ShapeCount{}
	case strings.Contains(lowered, "where id") || strings.Contains(lowered, "id ="):
		m := idPattern.FindStringSubmatch(lowered)
		if m == nil {
			return ShapeUnrecognized{}
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return ShapeUnrecognized{}
		}
		return ShapeLookup{ID: id}
	default:
		return ShapeUnrecognized{}
	}
}

// NormalizeStatement drops blank lines and "--" comment lines and joins the
// rest with single spaces.
func NormalizeStatement(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}
