// registry.go - Relational bookkeeping of folders, files and ownership.
//
// Every by-id operation is scoped to the acting owner in the query
// itself, so the ownership invariant lives in one place instead of in
// each handler.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Folder is a named container for files with exactly one owner.
type Folder struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   uuid.UUID `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// File records an uploaded object. StorageRef is the opaque locator
// returned by the object store, resolved only at download time.
type File struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	StorageRef string    `json:"-"`
	Size       int64     `json:"size"`
	OwnerID    uuid.UUID `json:"owner_id"`
	FolderID   uuid.UUID `json:"folder_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// FolderWithFiles is a folder detail view.
type FolderWithFiles struct {
	Folder
	Files []File `json:"files"`
}

// Registry is the folder/file store. Constructed once and passed down;
// lifecycle of the underlying pool belongs to the caller.
type Registry struct {
	db *sql.DB
}

func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// CreateFolder inserts a folder for the owner. Duplicate names are
// permitted.
func (r *Registry) CreateFolder(ctx context.Context, ownerID uuid.UUID, name string) (Folder, error) {
	f := Folder{ID: uuid.New(), Name: name, OwnerID: ownerID}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO folders (id, name, owner_id)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		f.ID, f.Name, f.OwnerID,
	).Scan(&f.CreatedAt)
	if err != nil {
		return Folder{}, fmt.Errorf("create folder: %w", err)
	}

	return f, nil
}

// ListFolders returns the owner's folders in insertion order.
func (r *Registry) ListFolders(ctx context.Context, ownerID uuid.UUID) ([]Folder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, owner_id, created_at
		 FROM folders
		 WHERE owner_id = $1
		 ORDER BY created_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.OwnerID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}

	return folders, nil
}

// FolderByID fetches a single folder owned by ownerID.
func (r *Registry) FolderByID(ctx context.Context, id, ownerID uuid.UUID) (Folder, error) {
	var f Folder
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at
		 FROM folders
		 WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	).Scan(&f.ID, &f.Name, &f.OwnerID, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Folder{}, fmt.Errorf("folder %s: %w", id, ErrNotFound)
		}
		return Folder{}, fmt.Errorf("get folder: %w", err)
	}

	return f, nil
}

// RenameFolder updates the folder name for the owner's folder.
func (r *Registry) RenameFolder(ctx context.Context, id, ownerID uuid.UUID, newName string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE folders SET name = $1 WHERE id = $2 AND owner_id = $3`,
		newName, id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("rename folder: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename folder: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}

	return nil
}

// DeleteFolder removes the owner's folder by id. Contained file rows
// are left in place and keep their folder_id.
func (r *Registry) DeleteFolder(ctx context.Context, id, ownerID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM folders WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}

	return nil
}

// GetFolderWithFiles loads the folder and every file whose folder_id
// matches.
func (r *Registry) GetFolderWithFiles(ctx context.Context, id, ownerID uuid.UUID) (FolderWithFiles, error) {
	folder, err := r.FolderByID(ctx, id, ownerID)
	if err != nil {
		return FolderWithFiles{}, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, storage_ref, size_bytes, owner_id, folder_id, created_at
		 FROM files
		 WHERE folder_id = $1
		 ORDER BY created_at ASC`,
		id,
	)
	if err != nil {
		return FolderWithFiles{}, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	out := FolderWithFiles{Folder: folder}
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.Name, &f.StorageRef, &f.Size, &f.OwnerID, &f.FolderID, &f.CreatedAt); err != nil {
			return FolderWithFiles{}, fmt.Errorf("scan file: %w", err)
		}
		out.Files = append(out.Files, f)
	}
	if err := rows.Err(); err != nil {
		return FolderWithFiles{}, fmt.Errorf("iterate files: %w", err)
	}

	return out, nil
}

// CreateFile records an uploaded object in the given folder, attributed
// to the uploading user.
func (r *Registry) CreateFile(ctx context.Context, ownerID, folderID uuid.UUID, name, storageRef string, size int64) (File, error) {
	f := File{
		ID:         uuid.New(),
		Name:       name,
		StorageRef: storageRef,
		Size:       size,
		OwnerID:    ownerID,
		FolderID:   folderID,
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO files (id, name, storage_ref, size_bytes, owner_id, folder_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		f.ID, f.Name, f.StorageRef, f.Size, f.OwnerID, f.FolderID,
	).Scan(&f.CreatedAt)
	if err != nil {
		return File{}, fmt.Errorf("create file: %w", err)
	}

	return f, nil
}

// GetFile fetches a file record owned by ownerID.
func (r *Registry) GetFile(ctx context.Context, id, ownerID uuid.UUID) (File, error) {
	var f File
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, storage_ref, size_bytes, owner_id, folder_id, created_at
		 FROM files
		 WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	).Scan(&f.ID, &f.Name, &f.StorageRef, &f.Size, &f.OwnerID, &f.FolderID, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return File{}, fmt.Errorf("file %s: %w", id, ErrNotFound)
		}
		return File{}, fmt.Errorf("get file: %w", err)
	}

	return f, nil
}
