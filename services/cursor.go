package services

import "pulse/models"

// PaginationCursor - состояние пагинации одной (сессия, таб) пары.
// Живет только в памяти сессии, сбрасывается при смене таба и loadNew.
type PaginationCursor struct {
	offset   int
	pageSize int
	hasMore  bool
	seenIDs  map[int64]struct{}
}

func NewPaginationCursor(pageSize int) *PaginationCursor {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &PaginationCursor{
		pageSize: pageSize,
		hasMore:  true,
		seenIDs:  make(map[int64]struct{}),
	}
}

func (c *PaginationCursor) Offset() int   { return c.offset }
func (c *PaginationCursor) PageSize() int { return c.pageSize }
func (c *PaginationCursor) HasMore() bool { return c.hasMore }

// Append отфильтровывает уже виденные id и помечает новые как виденные.
// Уникальность id в загруженном окне обеспечивается именно здесь.
func (c *PaginationCursor) Append(newItems []models.Post) []models.Post {
	fresh := make([]models.Post, 0, len(newItems))
	for _, item := range newItems {
		if _, seen := c.seenIDs[item.ID]; seen {
			continue
		}
		c.seenIDs[item.ID] = struct{}{}
		fresh = append(fresh, item)
	}
	return fresh
}

// MarkSeen регистрирует id, попавший в окно в обход пагинации
// (подтвержденный сервером пост после optimistic create)
func (c *PaginationCursor) MarkSeen(id int64) {
	c.seenIDs[id] = struct{}{}
}

// MarkPage сдвигает offset на сырой размер ответа хранилища.
// hasMore = (ответ полный) - эвристика: страница ровно в pageSize без
// продолжения занизит hasMore, точного total хранилище не дает.
func (c *PaginationCursor) MarkPage(returnedCount int) {
	c.offset += returnedCount
	c.hasMore = returnedCount == c.pageSize
}

// Reset возвращает курсор к пустому состоянию
func (c *PaginationCursor) Reset() {
	c.offset = 0
	c.hasMore = true
	c.seenIDs = make(map[int64]struct{})
}
