package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pckerneis/micro/patch"
)

// renderRoutes prints the live graph: one row per node with its
// parameters, then the named routes and the remaining connections.
func renderRoutes(w io.Writer, g *patch.Graph) {
	if g == nil || len(g.Nodes) == 0 {
		fmt.Fprintln(w, "no patch loaded")
		return
	}

	var maxNameLen int
	for _, name := range g.NodeOrder {
		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}
	}
	for name := range g.Routes {
		if len(name) > maxNameLen {
			maxNameLen = len(name)
		}
	}

	for _, name := range g.NodeOrder {
		def := g.Nodes[name]
		fmt.Fprintf(w, "%s  %s%s\n", colorize(pad(name, maxNameLen), colorBlue),
			def.Kind, renderParams(def))
	}

	routes := make([]string, 0, len(g.Routes))
	for name := range g.Routes {
		routes = append(routes, name)
	}
	sort.Strings(routes)
	for _, name := range routes {
		route := g.Routes[name]
		fmt.Fprintf(w, "%s  %s\n", colorize(pad(name, maxNameLen), colorGreen),
			strings.Join(route.AllNodes, " -> "))
	}

	for _, conn := range g.Connections {
		fmt.Fprintf(w, "%s  %s\n", strings.Repeat(" ", maxNameLen), conn)
	}
}

func renderParams(def *patch.NodeDef) string {
	if len(def.Params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(def.Params))
	for key := range def.Params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, key := range keys {
		pairs[i] = key + "=" + formatValue(def.Params[key])
	}
	return colorize("{"+strings.Join(pairs, ", ")+"}", colorMagenta)
}

func formatValue(v patch.Value) string {
	switch v := v.(type) {
	case patch.Number:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case patch.Decibel:
		return strconv.FormatFloat(float64(v), 'g', -1, 64) + "dB"
	case patch.String:
		return string(v)
	case patch.Bool:
		return strconv.FormatBool(bool(v))
	}
	return fmt.Sprintf("%v", v)
}

// renderPatterns prints one row per pattern: a black square for a
// sounding step, a white square for a rest, a dash for a step held
// over by a tie.
func renderPatterns(w io.Writer, patterns []*patch.Pattern) {
	if len(patterns) == 0 {
		fmt.Fprintln(w, "no patterns defined")
		return
	}

	var maxNameLen int
	for _, p := range patterns {
		if len(p.Target) > maxNameLen {
			maxNameLen = len(p.Target)
		}
	}

	for _, p := range patterns {
		var steps strings.Builder
		for _, slot := range p.Slots {
			switch {
			case slot.Event == nil:
				steps.WriteString("➖ ")
			case slot.Event.Token == nil:
				steps.WriteString("⬜️ ")
			default:
				steps.WriteString("⬛️ ")
			}
		}
		beats := colorize(strconv.FormatFloat(p.Beats(), 'g', -1, 64)+" beats", colorMagenta)
		fmt.Fprintf(w, "%s  %s %s\n", colorize(pad(p.Target, maxNameLen), colorBlue),
			steps.String(), beats)
	}
}

func renderErrors(w io.Writer, errs []patch.Error) {
	if len(errs) == 0 {
		fmt.Fprintln(w, "no errors")
		return
	}
	for _, e := range errs {
		fmt.Fprintln(w, colorize(e.Error(), colorRed))
	}
}

func pad(name string, width int) string {
	if len(name) < width {
		name += strings.Repeat(" ", width-len(name))
	}
	return name
}

const (
	colorBlack = iota + 30
	colorRed
	colorGreen
	colorYellow
	colorBlue
	colorMagenta
)

func colorize(text string, color int) string {
	return fmt.Sprintf("\033[%dm%s\033[0m", color, text)
}
