// Package viz draws the change graph of a board document.
package viz

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/astromechza/codeboard/pkg/document"
)

const snippetLength = 24

// Render writes an SVG with one node per revision, labelled with its hash prefix, actor and
// sequence number and a snippet of the text, and an edge from each dependency.
func Render(revisions []document.Revision, w io.Writer) error {
	g := graphviz.New()
	defer g.Close()

	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer graph.Close()

	nodeMap := make(map[string]*cgraph.Node)
	edgeCounter := 0
	for _, rev := range revisions {
		n, err := graph.CreateNode(rev.Hash.String())
		if err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		n.SetLabel(Label(rev))
		nodeMap[n.Name()] = n

		for _, hash := range rev.Dependencies {
			dep, ok := nodeMap[hash.String()]
			if !ok {
				return fmt.Errorf("revision %s depends on unknown %s", rev.Hash, hash)
			}
			edgeCounter++
			if _, err := graph.CreateEdge(strconv.Itoa(edgeCounter), dep, n); err != nil {
				return fmt.Errorf("failed to create edge: %w", err)
			}
		}
	}

	if err := g.Render(graph, graphviz.SVG, w); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	return nil
}

// Label is the node text for rev.
func Label(rev document.Revision) string {
	text := []rune(rev.Text)
	snippet := string(text)
	if len(text) > snippetLength {
		snippet = string(text[len(text)-snippetLength:])
		snippet = "..." + snippet
	}
	return fmt.Sprintf("%s %s@%d %q", rev.Hash.String()[:8], rev.Actor, rev.Seq, snippet)
}

func RenderDocToSvg(doc *document.Document, outputPath string) error {
	revisions, err := doc.History()
	if err != nil {
		return err
	}
	var buff bytes.Buffer
	if err := Render(revisions, &buff); err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, buff.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}

func RenderToTemp(doc *document.Document) (string, error) {
	tf := filepath.Join(os.TempDir(), fmt.Sprintf("%d%d.svg", time.Now().UnixNano(), rand.Int()))
	if err := RenderDocToSvg(doc, tf); err != nil {
		return "", err
	}
	return tf, nil
}
