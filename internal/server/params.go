package server

import (
	"strconv"
	"strings"

	fiber "github.com/gofiber/fiber/v3"
	"github.com/hyp3rd/ewrap"

	"perfstore/internal/compress"
	"perfstore/internal/sentinel"
)

// idSeparator joins run ids in /compare and /common-operations paths.
const idSeparator = "-"

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ewrap.Wrapf(sentinel.ErrInvalidArgument, "id %q", raw)
	}

	return id, nil
}

func paramID(c fiber.Ctx, name string) (int64, error) {
	return parseID(c.Params(name))
}

// parseIDs splits "1-2-3".
func parseIDs(raw string) ([]int64, error) {
	if raw == "" {
		return []int64{}, nil
	}

	parts := strings.Split(raw, idSeparator)
	ids := make([]int64, 0, len(parts))

	for _, p := range parts {
		id, err := parseID(p)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// payloadOf reads an uploaded payload. The format comes from the format
// query parameter, or is detected from the body. The length parameter,
// when present, is the decoded size.
func payloadOf(c fiber.Ctx) (compress.Payload, error) {
	body := append([]byte(nil), c.Body()...)

	format := compress.Detect(body)
	if name := c.Query("format"); name != "" {
		f, err := compress.ParseFormat(name)
		if err != nil {
			return compress.Payload{}, err
		}

		format = f
	}

	length := 0
	if raw := c.Query("length"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return compress.Payload{}, ewrap.Wrapf(sentinel.ErrInvalidArgument, "length %q", raw)
		}

		length = n
	}

	if len(body) == 0 {
		return compress.Payload{}, ewrap.Wrap(sentinel.ErrInvalidArgument, "empty payload")
	}

	return compress.Payload{Data: body, Format: format, OriginalLength: length}, nil
}
