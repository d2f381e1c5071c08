package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// parseYAML parses the specific two-level mapping used by config.yaml
func parseYAML(r io.Reader, cfg *Config) error {
	type section int
	const (
		none section = iota
		db
		rd
		rm
		sv
		jw
		tr
	)

	scanner := bufio.NewScanner(r)
	var cur section

	lineNo := 0
	seenTop := map[section]bool{}

	markSeen := func(s section, name string) error {
		if seenTop[s] {
			return fmt.Errorf("line %d: duplicate %q section", lineNo, name)
		}
		seenTop[s] = true
		cur = s
		return nil
	}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		// strip comments
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}

		line := strings.TrimRight(raw, " \t\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		// top-level section? (no leading spaces)
		if len(line) > 0 && (line[0] != ' ' && line[0] != '\t') {
			var err error
			switch strings.TrimSpace(line) {
			case "database:":
				err = markSeen(db, "database")
			case "redis:":
				err = markSeen(rd, "redis")
			case "rabbitmq:":
				err = markSeen(rm, "rabbitmq")
			case "services:":
				err = markSeen(sv, "services")
			case "jwt:":
				err = markSeen(jw, "jwt")
			case "tracking:":
				err = markSeen(tr, "tracking")
			default:
				err = fmt.Errorf("line %d: unknown top-level key %q", lineNo, strings.TrimSuffix(strings.TrimSpace(line), ":"))
			}
			if err != nil {
				return err
			}
			continue
		}

		// expect indented "key: value"
		if cur == none {
			return fmt.Errorf("line %d: key without a section", lineNo)
		}
		trim := strings.TrimSpace(line)
		colon := strings.IndexByte(trim, ':')
		if colon <= 0 {
			return fmt.Errorf("line %d: expected 'key: value'", lineNo)
		}
		key := strings.TrimSpace(trim[:colon])
		val := strings.TrimLeft(strings.TrimSpace(trim[colon+1:]), " \t")

		intVal := func(section string) (int, error) {
			n, err := strconv.Atoi(resolveScalar(val))
			if err != nil {
				return 0, fmt.Errorf("line %d: %s.%s must be int: %v", lineNo, section, key, err)
			}
			return n, nil
		}

		var err error
		switch cur {
		case db:
			switch key {
			case "host":
				cfg.Database.Host = resolveScalar(val)
			case "port":
				cfg.Database.Port, err = intVal("database")
			case "user":
				cfg.Database.User = resolveScalar(val)
			case "password":
				cfg.Database.Password = resolveScalar(val)
			case "database":
				cfg.Database.Name = resolveScalar(val)
			default:
				err = fmt.Errorf("line %d: unknown key in database: %q", lineNo, key)
			}
		case rd:
			switch key {
			case "host":
				cfg.Redis.Host = resolveScalar(val)
			case "port":
				cfg.Redis.Port, err = intVal("redis")
			case "password":
				cfg.Redis.Password = resolveScalar(val)
			case "db":
				cfg.Redis.DB, err = intVal("redis")
			default:
				err = fmt.Errorf("line %d: unknown key in redis: %q", lineNo, key)
			}
		case rm:
			switch key {
			case "host":
				cfg.RabbitMQ.Host = resolveScalar(val)
			case "port":
				cfg.RabbitMQ.Port, err = intVal("rabbitmq")
			case "user":
				cfg.RabbitMQ.User = resolveScalar(val)
			case "password":
				cfg.RabbitMQ.Password = resolveScalar(val)
			default:
				err = fmt.Errorf("line %d: unknown key in rabbitmq: %q", lineNo, key)
			}
		case sv:
			switch key {
			case "booking_service":
				cfg.Services.BookingServicePort, err = intVal("services")
			case "tracking_service":
				cfg.Services.TrackingServicePort, err = intVal("services")
			case "admin_service":
				cfg.Services.AdminServicePort, err = intVal("services")
			default:
				err = fmt.Errorf("line %d: unknown key in services: %q", lineNo, key)
			}
		case jw:
			switch key {
			case "secret_key":
				cfg.JWT.SecretKey = resolveScalar(val)
			default:
				err = fmt.Errorf("line %d: unknown key in jwt: %q", lineNo, key)
			}
		case tr:
			switch key {
			case "sample_interval_seconds":
				cfg.Tracking.SampleIntervalSeconds, err = intVal("tracking")
			case "eta_refresh_seconds":
				cfg.Tracking.ETARefreshSeconds, err = intVal("tracking")
			case "position_timeout_seconds":
				cfg.Tracking.PositionTimeoutSeconds, err = intVal("tracking")
			case "avg_speed_kmh":
				var f float64
				f, err = strconv.ParseFloat(resolveScalar(val), 64)
				if err != nil {
					err = fmt.Errorf("line %d: tracking.avg_speed_kmh must be a number: %v", lineNo, err)
				}
				cfg.Tracking.AvgSpeedKmh = f
			default:
				err = fmt.Errorf("line %d: unknown key in tracking: %q", lineNo, key)
			}
		}
		if err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}

// resolveScalar trims whitespace, removes surrounding quotes, and expands
// ${VAR} references from the environment. For example:
//
//	"localhost"     -> localhost
//	'password123'   -> password123
//	${DB_PASSWORD}  -> value of $DB_PASSWORD
func resolveScalar(s string) string {
	s = strings.TrimSpace(s)

	// if value is quoted with "..." or '...', remove quotes safely
	n := len(s)
	if n >= 2 {
		if (s[0] == '"' && s[n-1] == '"') || (s[0] == '\'' && s[n-1] == '\'') {
			if unq, err := strconv.Unquote(s); err == nil {
				s = unq
			} else {
				// fallback if strconv.Unquote fails (e.g., mismatched quotes)
				s = s[1 : n-1]
			}
		}
	}

	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}

	return s
}
