package paginate

import "guardian/internal/models"

// Slice returns one page of items. The requested page is clamped to
// [1, lastPage]; an empty collection yields lastPage 0 and no data.
func Slice[T any](items []T, page, perPage int) models.Page[T] {
	if perPage < 1 {
		perPage = 1
	}
	total := len(items)
	lastPage := LastPage(total, perPage)
	page = Clamp(page, lastPage)

	offset := (page - 1) * perPage
	end := offset + perPage
	if end > total {
		end = total
	}
	data := make([]T, 0, max(0, end-offset))
	if offset < total {
		data = append(data, items[offset:end]...)
	}
	return models.Page[T]{
		Data: data,
		PaginatorInfo: models.PaginatorInfo{
			CurrentPage: page,
			LastPage:    lastPage,
			Total:       total,
		},
	}
}

func LastPage(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	n := total / perPage
	if total%perPage != 0 {
		n++
	}
	return n
}

func Clamp(page, lastPage int) int {
	if page > lastPage {
		page = lastPage
	}
	if page < 1 {
		page = 1
	}
	return page
}
