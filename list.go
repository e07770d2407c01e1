package prefixdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ValueParser converts the optional value column of a prefix list into a
// payload.
type ValueParser[V any] func(string) (V, error)

// ParseUint32 is a ValueParser for Uint32Serializer databases.
func ParseUint32(field string) (uint32, error) {
	v, err := strconv.ParseUint(field, 0, 32)
	return uint32(v), err
}

// AddList adds every prefix of a text list to the database. Each line holds
// a prefix in CIDR notation, optionally followed by a value converted by
// parse. Anything after a '#' is a comment; blank lines are skipped. With a
// nil parse, lines must not carry values and prefixes get the zero value.
//
// AddList stops at the first malformed line and returns the number of
// prefixes added before it together with an error naming the line.
func (db *DB[V]) AddList(ctx context.Context, r io.Reader, parse ValueParser[V]) (int, error) {
	scanner := bufio.NewScanner(r)
	added, line := 0, 0

	for scanner.Scan() {
		line++

		text := scanner.Text()
		if i := strings.IndexAny(text, "#\r\n"); i >= 0 {
			text = text[:i]
		}

		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		var value V
		switch {
		case len(fields) == 2 && nil != parse:
			v, err := parse(fields[1])
			if err != nil {
				return added, fmt.Errorf("line %d: bad value %q: %w", line, fields[1], errors.Join(ErrInvalidFormat, err))
			}
			value = v
		case len(fields) != 1:
			return added, fmt.Errorf("line %d: unexpected fields %q: %w", line, text, ErrInvalidFormat)
		}

		key, err := ParsePrefix(fields[0])
		if err != nil {
			return added, fmt.Errorf("line %d: %w", line, err)
		}
		if _, err := db.tree.Insert(ctx, key, value); err != nil {
			return added, fmt.Errorf("line %d: %w", line, err)
		}
		added++
	}

	if err := scanner.Err(); err != nil {
		return added, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return added, nil
}

// AddFile is AddList reading the list from the file at path.
func (db *DB[V]) AddFile(ctx context.Context, path string, parse ValueParser[V]) (added int, err error) {
	file, _, err := db.fs.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, errors.Join(ErrIO, err))
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	added, err = db.AddList(ctx, file, parse)
	if err != nil {
		return added, fmt.Errorf("%s: %w", path, err)
	}
	return added, nil
}
