package actstore

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/pannpers/go-apperr/apperr"
	"github.com/pannpers/go-apperr/apperr/codes"
	"github.com/uptrace/bun/driver/pgdriver"
)

// toAppErr converts a database error into a structured application error.
// It maps specific PostgreSQL error codes (surfaced via pgdriver.Error) to
// appropriate apperr codes.
func toAppErr(err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(err, codes.NotFound, msg, attrs...)
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		// Constraint violations (Class 23)
		case "23505": // unique_violation
			return apperr.Wrap(err, codes.AlreadyExists, msg, attrs...)
		case "23503": // foreign_key_violation
			return apperr.Wrap(err, codes.FailedPrecondition, msg, attrs...)
		case "23502": // not_null_violation
			return apperr.Wrap(err, codes.InvalidArgument, msg, attrs...)
		case "23514": // check_violation
			return apperr.Wrap(err, codes.InvalidArgument, msg, attrs...)
		case "23P01": // exclusion_violation
			return apperr.Wrap(err, codes.FailedPrecondition, msg, attrs...)

		// Data exceptions (Class 22)
		case "22P02", "22001", "22003", "22007", "22012":
			// invalid_text_representation, string_data_right_truncation,
			// numeric_value_out_of_range, invalid_datetime_format, division_by_zero
			return apperr.Wrap(err, codes.InvalidArgument, msg, attrs...)

		// Transaction/concurrency errors (Class 40)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return apperr.Wrap(err, codes.Aborted, msg, attrs...)

		// Connection errors (Class 08)
		case "08000", "08003", "08006", "08001", "08004", "08007", "08P01":
			return apperr.Wrap(err, codes.Unavailable, msg, attrs...)

		// Insufficient resources (Class 53)
		case "53000", "53100", "53200", "53300", "53400":
			return apperr.Wrap(err, codes.Unavailable, msg, attrs...)

		// Operator intervention (Class 57)
		case "57000", "57014", "57P01", "57P02", "57P03":
			return apperr.Wrap(err, codes.Unavailable, msg, attrs...)
		}
	}

	// Connection-class failures surfaced directly by database/sql (driver
	// couldn't even reach the server) are reported as Unavailable so the
	// caller's health gate reacts the same way it would to a PG-side
	// connection error.
	if errors.Is(err, sql.ErrConnDone) {
		return apperr.Wrap(err, codes.Unavailable, msg, attrs...)
	}

	return apperr.Wrap(err, codes.Internal, msg, attrs...)
}

// isUniqueViolation returns true if the error is a PostgreSQL unique violation.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}
