package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/rewards-shop/internal/wire"
)

const maxLineBytes = 1 << 20

// seedUser is one input line.
type seedUser struct {
	Email         string
	Name          string
	TotalOrders   int
	TotalSpent    decimal.Decimal
	LoyaltyPoints int
}

func (u seedUser) valid() bool {
	return strings.Contains(u.Email, "@") && u.TotalOrders >= 0 && !u.TotalSpent.IsNegative()
}

func decodeSeedUser(data []byte) (seedUser, error) {
	var u seedUser
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			u.Email, err = d.Str()
		case "name":
			u.Name, err = d.Str()
		case "totalOrders":
			u.TotalOrders, err = d.Int()
		case "totalSpent":
			u.TotalSpent, err = wire.DecodeDecimal(d)
		case "loyaltyPoints":
			u.LoyaltyPoints, err = d.Int()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	u.Email = strings.TrimSpace(u.Email)
	u.Name = strings.TrimSpace(u.Name)
	return u, err
}

// streamFile calls fn for every non-empty line of path. A .gz suffix selects
// the parallel gzip reader.
func streamFile(ctx context.Context, path string, fn func(line int, data []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		data := scanner.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		if err := fn(line, data); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
