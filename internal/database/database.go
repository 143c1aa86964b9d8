// Package database archives exported parcel selections in Oracle.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/sijms/go-ora/v2"

	"landplots/internal/types"
)

// dsn builds a properly encoded connection string for Oracle Autonomous Database
func dsn(username, password, host, port, service string, walletLocation string) string {
	if walletLocation != "" {
		// wallet-based mTLS
		return fmt.Sprintf(
			"oracle://%s:%s@%s:%s/%s?ssl=true&wallet_location=%s",
			url.PathEscape(username), url.PathEscape(password), host, port, service, url.PathEscape(walletLocation))
	}

	return (&url.URL{
		Scheme:   "oracle",
		User:     url.UserPassword(username, password),
		Host:     host + ":" + port,
		Path:     "/" + service,
		RawQuery: "ssl=true", // ADB requires TCPS
	}).String()
}

// DBConfig holds database connection configuration
type DBConfig struct {
	Host           string
	Port           string
	Service        string
	Username       string
	Password       string
	WalletLocation string
}

// Database holds the database connection and configuration
type Database struct {
	db     *sql.DB
	config DBConfig
}

// Archive is one saved selection.
type Archive struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	CreatedAt   time.Time `json:"createdAt"`
	ParcelCount int       `json:"parcelCount"`
}

// NewDatabase opens and pings the archive database.
func NewDatabase(ctx context.Context, config DBConfig) (*Database, error) {
	connStr := dsn(config.Username, config.Password, config.Host, config.Port, config.Service, config.WalletLocation)

	db, err := sql.Open("oracle", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{db: db, config: config}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

var schema = []string{
	`CREATE TABLE LANDPLOTS_ARCHIVE (
		Archive_Id    VARCHAR2(36) PRIMARY KEY,
		Label         VARCHAR2(200),
		Created_At    TIMESTAMP NOT NULL,
		Parcel_Count  NUMBER(10) NOT NULL
	)`,
	`CREATE TABLE LANDPLOTS_ARCHIVE_PARCEL (
		Archive_Id        VARCHAR2(36) NOT NULL REFERENCES LANDPLOTS_ARCHIVE(Archive_Id) ON DELETE CASCADE,
		Seq               NUMBER(10) NOT NULL,
		Parcel_Id         VARCHAR2(200),
		Cadastral_Number  VARCHAR2(100),
		Address           VARCHAR2(1000),
		Area              NUMBER,
		Purpose           VARCHAR2(400),
		Color             VARCHAR2(32),
		Source            VARCHAR2(32),
		File_Name         VARCHAR2(400),
		Value             NUMBER,
		Rent_Income       NUMBER,
		Coordinates       CLOB,
		PRIMARY KEY (Archive_Id, Seq)
	)`,
}

// EnsureSchema creates the archive tables unless they exist.
func (d *Database) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			if isAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("failed to create archive schema: %w", err)
		}
	}
	return nil
}

// ORA-00955: name is already used by an existing object
func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "ORA-00955")
}

// ArchiveSelection stores parcels under a new archive id in one transaction.
// Profitability is not stored; it is derived again when the parcels load.
func (d *Database) ArchiveSelection(ctx context.Context, label string, parcels []types.Parcel) (Archive, error) {
	a := Archive{
		ID:          uuid.NewString(),
		Label:       label,
		CreatedAt:   time.Now().UTC(),
		ParcelCount: len(parcels),
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Archive{}, fmt.Errorf("failed to begin archive: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO LANDPLOTS_ARCHIVE (Archive_Id, Label, Created_At, Parcel_Count) VALUES (:1, :2, :3, :4)`,
		a.ID, a.Label, a.CreatedAt, a.ParcelCount,
	); err != nil {
		return Archive{}, fmt.Errorf("failed to insert archive: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO LANDPLOTS_ARCHIVE_PARCEL
			(Archive_Id, Seq, Parcel_Id, Cadastral_Number, Address, Area, Purpose, Color, Source, File_Name, Value, Rent_Income, Coordinates)
		VALUES (:1, :2, :3, :4, :5, :6, :7, :8, :9, :10, :11, :12, :13)
	`)
	if err != nil {
		return Archive{}, fmt.Errorf("failed to prepare parcel insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range parcels {
		args, err := parcelArgs(a.ID, i, p)
		if err != nil {
			return Archive{}, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return Archive{}, fmt.Errorf("failed to insert parcel %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Archive{}, fmt.Errorf("failed to commit archive: %w", err)
	}
	return a, nil
}

func parcelArgs(archiveID string, seq int, p types.Parcel) ([]any, error) {
	coords, err := json.Marshal(p.Coordinates)
	if err != nil {
		return nil, fmt.Errorf("failed to encode coordinates of %s: %w", p.ID, err)
	}
	return []any{
		archiveID, seq, p.ID, p.CadastralNumber, p.Address, p.Area, p.Purpose,
		p.Color, string(p.Source), p.FileName, p.Value, p.RentIncome, string(coords),
	}, nil
}

// ListArchives returns the most recent archives first.
func (d *Database) ListArchives(ctx context.Context, limit int) ([]Archive, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT Archive_Id, Label, Created_At, Parcel_Count
		FROM LANDPLOTS_ARCHIVE
		ORDER BY Created_At DESC
		FETCH FIRST :1 ROWS ONLY
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archives: %w", err)
	}
	defer rows.Close()

	var archives []Archive
	for rows.Next() {
		var (
			a     Archive
			label sql.NullString
		)
		if err := rows.Scan(&a.ID, &label, &a.CreatedAt, &a.ParcelCount); err != nil {
			return nil, fmt.Errorf("failed to scan archive: %w", err)
		}
		a.Label = label.String
		archives = append(archives, a)
	}
	return archives, rows.Err()
}

// LoadArchive returns the parcels of one archive in their saved order.
func (d *Database) LoadArchive(ctx context.Context, archiveID string) ([]types.Parcel, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT Parcel_Id, Cadastral_Number, Address, Area, Purpose, Color, Source, File_Name, Value, Rent_Income, Coordinates
		FROM LANDPLOTS_ARCHIVE_PARCEL
		WHERE Archive_Id = :1
		ORDER BY Seq
	`, archiveID)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive %s: %w", archiveID, err)
	}
	defer rows.Close()

	var parcels []types.Parcel
	for rows.Next() {
		var (
			p                                  types.Parcel
			cadastral, address, purpose, color sql.NullString
			source, fileName, coords           sql.NullString
			area, value, rentIncome            sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &cadastral, &address, &area, &purpose, &color, &source, &fileName, &value, &rentIncome, &coords); err != nil {
			return nil, fmt.Errorf("failed to scan parcel: %w", err)
		}
		p.CadastralNumber, p.Address, p.Purpose = cadastral.String, address.String, purpose.String
		p.Color, p.Source, p.FileName = color.String, types.Source(source.String), fileName.String
		p.Area, p.Value, p.RentIncome = area.Float64, value.Float64, rentIncome.Float64
		if coords.Valid && coords.String != "" {
			if err := json.Unmarshal([]byte(coords.String), &p.Coordinates); err != nil {
				return nil, fmt.Errorf("failed to decode coordinates of %s: %w", p.ID, err)
			}
		}
		parcels = append(parcels, p)
	}
	return parcels, rows.Err()
}
