package milp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

const termsPerLine = 8

// WriteLP serialises m in CPLEX LP format. Maximisation models are written as
// minimisation of the negated objective so every engine reads the same
// direction; callers negate the reported objective back.
func WriteLP(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)
	if m.Name != "" {
		fmt.Fprintf(bw, "\\ %s\n", m.Name)
	}

	bw.WriteString("Minimize\n obj:")
	sign := 1.0
	if m.Maximize {
		sign = -1.0
	}
	if len(m.Objective) == 0 && len(m.Variables) > 0 {
		fmt.Fprintf(bw, " 0 %s", m.Variables[0].Name)
	}
	writeTerms(bw, m, m.Objective, sign)
	bw.WriteString("\nSubject To\n")

	for _, c := range m.Constraints {
		fmt.Fprintf(bw, " %s:", c.Name)
		if len(c.Terms) == 0 && len(m.Variables) > 0 {
			fmt.Fprintf(bw, " 0 %s", m.Variables[0].Name)
		}
		writeTerms(bw, m, c.Terms, 1)
		fmt.Fprintf(bw, " %s %s\n", c.Sense, formatCoef(c.RHS))
	}

	if len(m.Variables) > 0 {
		bw.WriteString("Binaries\n")
		for i, v := range m.Variables {
			if i > 0 && i%termsPerLine == 0 {
				bw.WriteString("\n")
			}
			fmt.Fprintf(bw, " %s", v.Name)
		}
		bw.WriteString("\n")
	}
	bw.WriteString("End\n")
	return bw.Flush()
}

func writeTerms(bw *bufio.Writer, m *Model, terms []Term, sign float64) {
	for i, t := range terms {
		if i > 0 && i%termsPerLine == 0 {
			bw.WriteString("\n   ")
		}
		coef := sign * t.Coef
		op := "+"
		if coef < 0 {
			op = "-"
			coef = -coef
		}
		if i == 0 && op == "+" {
			fmt.Fprintf(bw, " %s %s", formatCoef(coef), m.Variables[t.Var].Name)
			continue
		}
		fmt.Fprintf(bw, " %s %s %s", op, formatCoef(coef), m.Variables[t.Var].Name)
	}
}

func formatCoef(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
