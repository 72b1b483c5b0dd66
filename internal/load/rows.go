// Package load writes JSON documents into their document tables.
package load

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/hurou927/docmap/internal/doctype"
	"github.com/hurou927/docmap/internal/identity"
	"github.com/hurou927/docmap/internal/mapping"
)

// Preparer turns raw JSON documents into rows matching the upsert arguments
// of a mapping: id, data, version, type tag, duplicated values, discriminator.
type Preparer struct {
	m     *mapping.DocumentMapping
	fn    *mapping.UpsertFunction
	gen   identity.Generator
	idKey string
	idTyp doctype.ValueType
	dups  []*mapping.DuplicatedField
	now   func() (uuid.UUID, error)
}

// NewPreparer snapshots the mapping's upsert layout and builds its id generator.
func NewPreparer(m *mapping.DocumentMapping, seqs identity.SequenceSource) (*Preparer, error) {
	gen, err := m.IDGenerator(seqs)
	if err != nil {
		return nil, fmt.Errorf("building id generator for %s: %w", m.Type().Name, err)
	}
	id := m.IDMember()
	return &Preparer{
		m:     m,
		fn:    m.UpsertFunction(),
		gen:   gen,
		idKey: id.Key(),
		idTyp: id.Type,
		dups:  m.DuplicatedFields(),
		now:   uuid.NewV7,
	}, nil
}

// Function returns the upsert layout rows are prepared for.
func (p *Preparer) Function() *mapping.UpsertFunction {
	return p.fn
}

// Prepare builds one row. Documents without an id get one from the mapping's
// generator, written back into the payload. sub selects the stored subtype; nil
// stores the root type.
func (p *Preparer) Prepare(ctx context.Context, raw []byte, sub *doctype.Type) ([]any, error) {
	doc, err := decode(raw)
	if err != nil {
		return nil, err
	}

	current, err := idValue(doc[p.idKey], p.idTyp)
	if err != nil {
		return nil, err
	}
	id, assigned, err := p.gen.Assign(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("assigning id: %w", err)
	}
	data := json.RawMessage(raw)
	if assigned {
		doc[p.idKey] = jsonID(id)
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("encoding document: %w", err)
		}
	}

	version, err := p.now()
	if err != nil {
		return nil, fmt.Errorf("generating version: %w", err)
	}

	docType := p.m.Type()
	if sub != nil {
		docType = sub
	}

	row := make([]any, 0, len(p.fn.Arguments))
	for _, arg := range p.fn.Arguments {
		switch arg.Column {
		case mapping.IDColumn:
			row = append(row, id)
		case mapping.DataColumn:
			row = append(row, data)
		case mapping.VersionColumn:
			row = append(row, version)
		case mapping.DotNetTypeColumn:
			row = append(row, docType.FullName())
		case mapping.DocumentTypeColumn:
			alias, err := p.m.DocumentTypeFor(sub)
			if err != nil {
				return nil, err
			}
			row = append(row, alias)
		default:
			v, err := p.duplicatedValue(doc, arg)
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
	}
	return row, nil
}

func (p *Preparer) duplicatedValue(doc map[string]any, arg mapping.UpsertArgument) (any, error) {
	for _, dup := range p.dups {
		if dup.ColumnName() != arg.Column {
			continue
		}
		v, ok := lookup(doc, dup.JSONPath())
		if !ok {
			return nil, nil
		}
		cv, err := columnValue(v, arg.PgType)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", arg.Column, err)
		}
		return cv, nil
	}
	return nil, nil
}

func decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if doc == nil {
		return nil, errors.New("document is not a JSON object")
	}
	return doc, nil
}

func lookup(doc map[string]any, path []string) (any, bool) {
	var cur any = doc
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// idValue converts a decoded id into what the generators accept.
func idValue(v any, t doctype.ValueType) (any, error) {
	n, ok := v.(json.Number)
	if !ok {
		return v, nil
	}
	switch t {
	case doctype.ValueInt32, doctype.ValueInt64:
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("document id %s is not an integer: %w", n, err)
		}
		return i, nil
	}
	return n.String(), nil
}

func jsonID(id any) any {
	if u, ok := id.(uuid.UUID); ok {
		return u.String()
	}
	return id
}

// columnValue converts a decoded JSON value to a value pgx can encode into a
// column of the given type.
func columnValue(v any, pgType string) (any, error) {
	switch pgType {
	case "integer", "bigint":
		if n, ok := v.(json.Number); ok {
			return n.Int64()
		}
	case "double precision", "numeric":
		if n, ok := v.(json.Number); ok {
			return n.Float64()
		}
	case "uuid":
		if s, ok := v.(string); ok {
			return uuid.Parse(s)
		}
	case "timestamp with time zone":
		if s, ok := v.(string); ok {
			return time.Parse(time.RFC3339Nano, s)
		}
	case "jsonb":
		b, err := json.Marshal(v)
		return json.RawMessage(b), err
	}
	switch t := v.(type) {
	case json.Number:
		return t.String(), nil
	case map[string]any, []any:
		b, err := json.Marshal(t)
		return string(b), err
	}
	return v, nil
}

// ReadDocuments reads either a JSON array of objects or one object per line.
func ReadDocuments(r io.Reader) ([]json.RawMessage, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var docs []json.RawMessage
		if err := dec.Decode(&docs); err != nil {
			return nil, fmt.Errorf("decoding document array: %w", err)
		}
		return docs, nil
	}

	var docs []json.RawMessage
	for {
		var doc json.RawMessage
		err := dec.Decode(&doc)
		if err == io.EOF {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decoding document %d: %w", len(docs)+1, err)
		}
		docs = append(docs, doc)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
