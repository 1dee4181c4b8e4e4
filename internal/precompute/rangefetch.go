package precompute

import (
	"context"
	"fmt"

	"reorder/internal/types"
)

// MaxCatalogPages bounds catalog pagination against a provider that never
// reports the last page.
const MaxCatalogPages = 500

// ItemLister reads the provider catalog one page at a time. Pages are
// 1-based.
type ItemLister interface {
	ListItems(ctx context.Context, page, perPage int) (types.ItemPage, error)
}

// FetchRange returns up to count items starting at logical offset start,
// reading only the provider pages that cover [start, start+count). Pages are
// requested in order and reading stops at the first page without more data,
// so the result is short near the end of the catalog and empty past it.
//
// A page error is returned as is; the caller must not advance its cursor.
func FetchRange(ctx context.Context, lister ItemLister, start, count, pageSize int) ([]types.Item, error) {
	if pageSize <= 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationPageSize,
			fmt.Sprintf("page size must be positive, got %d", pageSize),
			nil,
		)
	}
	if start < 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationChunkOptions,
			fmt.Sprintf("start offset must not be negative, got %d", start),
			nil,
		)
	}
	if count <= 0 {
		return []types.Item{}, nil
	}

	startPage := start/pageSize + 1
	endPage := (start+count-1)/pageSize + 1

	var acc []types.Item
	for page := startPage; page <= endPage; page++ {
		res, err := lister.ListItems(ctx, page, pageSize)
		if err != nil {
			return nil, fmt.Errorf("listing items page %d: %w", page, err)
		}
		acc = append(acc, res.Items...)
		if !res.HasMore {
			break
		}
	}

	offset := start % pageSize
	if offset >= len(acc) {
		return []types.Item{}, nil
	}
	end := min(len(acc), offset+count)
	return acc[offset:end], nil
}

// CountItems walks the catalog and returns its size, stopping after
// MaxCatalogPages pages.
func CountItems(ctx context.Context, lister ItemLister, pageSize int) (int, error) {
	if pageSize <= 0 {
		return 0, types.NewAppError(
			types.ErrCodeValidationPageSize,
			fmt.Sprintf("page size must be positive, got %d", pageSize),
			nil,
		)
	}

	total := 0
	for page := 1; page <= MaxCatalogPages; page++ {
		res, err := lister.ListItems(ctx, page, pageSize)
		if err != nil {
			return 0, fmt.Errorf("counting items page %d: %w", page, err)
		}
		total += len(res.Items)
		if !res.HasMore {
			break
		}
	}
	return total, nil
}
