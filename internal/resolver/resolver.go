// Package resolver 把任务配置、云账号配置、用户默认配置合并成插件需要的扁平 map.
// 纯函数, 无 IO; 数据由调用方预先查好.
package resolver

import (
	"strings"

	"github.com/timelyrain333/bifang-sub000/internal/model"
)

const AIConfigKey = "aiConfig"

type Input struct {
	TaskConfig     map[string]any
	PluginProvider string // 插件所属云厂商族, 为空表示不需要云凭据
	Account        *model.CloudAccount
	UserDefault    *model.UserProviderConfig
	AI             *model.AIConfig
}

// Resolve 每个 key 取第一个出现的值: 任务配置 > 云账号 > 用户默认.
// 云账号和用户默认配置只有 provider 与插件一致且处于启用状态时才参与合并.
// 找不到凭据不报错, 由插件自己给出明确的失败信息.
func Resolve(in Input) map[string]any {
	out := make(map[string]any, len(in.TaskConfig)+8)
	for k, v := range in.TaskConfig {
		out[k] = v
	}
	if family := normalize(in.PluginProvider); family != "" {
		if a := in.Account; a != nil && a.IsActive && normalize(a.Provider) == family {
			fill(out, a.Config)
		}
		if d := in.UserDefault; d != nil && d.IsActive && normalize(d.Provider) == family {
			fill(out, d.Config)
		}
	}
	if ai := in.AI; ai != nil && ai.Enabled {
		if _, set := out[AIConfigKey]; !set {
			out[AIConfigKey] = map[string]any{
				"provider": ai.Provider,
				"model":    ai.Model,
				"api_key":  ai.APIKey,
				"base_url": ai.BaseURL,
			}
		}
	}
	return out
}

func fill(dst map[string]any, src map[string]any) {
	for k, v := range src {
		if _, set := dst[k]; !set {
			dst[k] = v
		}
	}
}

func normalize(p string) string { return strings.ToLower(strings.TrimSpace(p)) }
