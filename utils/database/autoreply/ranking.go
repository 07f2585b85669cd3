package autoreply

import (
	"context"
	"fmt"
	"strconv"

	"jellybot/model"
)

// competitionRanks 计算名次（1, 2, 2, 4 ...）。counts 已由大到小排序，并列的名次加上 T 前缀。
func competitionRanks(counts []int) []string {
	ranks := make([]string, len(counts))
	for i := 0; i < len(counts); {
		j := i
		for j < len(counts) && counts[j] == counts[i] {
			j++
		}
		rank := strconv.Itoa(i + 1)
		if j-i > 1 {
			rank = "T" + rank
		}
		for k := i; k < j; k++ {
			ranks[k] = rank
		}
		i = j
	}
	return ranks
}

// ModuleCountRanking 频道内所有模组（含已停用）按调用次数排行，limit <= 0 表示不限
func (s *Store) ModuleCountRanking(ctx context.Context, channelID string, limit int) ([]model.ModuleRankEntry, error) {
	var modules []*model.AutoReplyModule
	err := s.db.SelectContext(ctx, &modules,
		`SELECT `+moduleColumns+` FROM auto_reply_modules WHERE channel_id = ? ORDER BY called_count DESC, created_at`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to rank auto reply modules of %s: %w", channelID, err)
	}

	counts := make([]int, len(modules))
	for i, m := range modules {
		counts[i] = m.CalledCount
	}
	ranks := competitionRanks(counts)
	if limit > 0 && len(modules) > limit {
		modules = modules[:limit]
	}
	out := make([]model.ModuleRankEntry, len(modules))
	for i, m := range modules {
		out[i] = model.ModuleRankEntry{Rank: ranks[i], Module: m}
	}
	return out, nil
}

// UniqueKeywordRanking 按关键字汇总调用次数与模组数量的排行
func (s *Store) UniqueKeywordRanking(ctx context.Context, channelID string, limit int) ([]model.KeywordRankEntry, error) {
	var rows []struct {
		Value       string            `db:"kw_value"`
		Type        model.ContentType `db:"kw_type"`
		TotalCount  int               `db:"total_count"`
		ModuleCount int               `db:"module_count"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT kw_value, kw_type, SUM(called_count) AS total_count, COUNT(*) AS module_count
		 FROM auto_reply_modules WHERE channel_id = ?
		 GROUP BY kw_value, kw_type
		 ORDER BY total_count DESC, kw_value, kw_type`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to rank keywords of %s: %w", channelID, err)
	}

	counts := make([]int, len(rows))
	for i, r := range rows {
		counts[i] = r.TotalCount
	}
	ranks := competitionRanks(counts)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]model.KeywordRankEntry, len(rows))
	for i, r := range rows {
		out[i] = model.KeywordRankEntry{
			Rank:        ranks[i],
			Keyword:     model.Content{Value: r.Value, Type: r.Type},
			TotalCount:  r.TotalCount,
			ModuleCount: r.ModuleCount,
		}
	}
	return out, nil
}
