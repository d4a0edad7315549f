package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hrygo/chatrelay/internal/profile"
	"github.com/hrygo/chatrelay/plugin/ai"
	"github.com/hrygo/chatrelay/plugin/ai/tools"
	"github.com/hrygo/chatrelay/server/chat"
	"github.com/hrygo/chatrelay/store"
	"github.com/hrygo/chatrelay/store/db"
)

// test-agent runs a few scripted turns against the configured model provider
// and prints what the orchestrator answers. It uses a throwaway SQLite file.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// 1. 加载配置
	log.Println("加载配置...")
	dataDir, err := os.MkdirTemp("", "chatrelay-test-agent")
	if err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}
	defer os.RemoveAll(dataDir)

	prof := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		Data:   dataDir,
	}
	prof.FromEnv()
	if err := prof.Validate(); err != nil {
		log.Fatalf("Invalid profile: %v", err)
	}
	if !prof.IsModelConfigured() {
		log.Fatal("Model provider is not configured. Set CHATRELAY_LLM_PROVIDER and its API key.")
	}

	// 2. 初始化数据库
	log.Println("初始化数据库...")
	ctx := context.Background()
	dbDriver, err := db.NewDBDriver(prof)
	if err != nil {
		log.Fatalf("Failed to create db driver: %v", err)
	}
	storeInstance := store.New(dbDriver, prof, nil)
	defer storeInstance.Close()
	if err := storeInstance.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	// 3. 初始化模型与工具
	log.Println("初始化模型...")
	model, err := ai.NewModelClient(ai.NewLLMConfigFromProfile(prof))
	if err != nil {
		log.Fatalf("Failed to create model client: %v", err)
	}
	executor := tools.NewDefaultExecutor(tools.Config{WeatherAPIKey: prof.WeatherAPIKey})
	orchestrator := chat.NewOrchestrator(storeInstance, model, executor, nil, chat.Config{
		HistoryLimit: prof.HistoryLimit,
		ModelTimeout: prof.ModelTimeout,
	})

	fmt.Println("\n========================================")
	fmt.Println("  对话编排测试程序")
	fmt.Println("========================================")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "普通问候",
			input:    "Hello! Who are you?",
			expected: "应该直接回答，不调用工具",
		},
		{
			name:     "数学计算",
			input:    "What is (17 + 25) * 3 / 2?",
			expected: "应该调用 calculate 并给出 63",
		},
		{
			name:     "当前时间",
			input:    "What time is it right now?",
			expected: "应该调用 get_current_time",
		},
		{
			name:     "上下文延续",
			input:    "Multiply the previous result by 10.",
			expected: "应该使用历史记录给出 630",
		},
	}

	// 所有轮次共用一个会话
	var sessionUID string
	var totalTokens, degraded int
	for i, test := range tests {
		fmt.Printf("\n[测试 %d/%d] %s\n", i+1, len(tests), test.name)
		fmt.Println("输入:", test.input)
		fmt.Println("预期:", test.expected)

		startTime := time.Now()
		result, err := orchestrator.Process(ctx, &chat.Request{
			UserID:     1,
			Message:    test.input,
			SessionUID: sessionUID,
			Channel:    "test-agent",
		})
		duration := time.Since(startTime)
		if err != nil {
			log.Printf("测试失败: %v\n", err)
			continue
		}
		sessionUID = result.SessionUID
		totalTokens += result.TokensUsed

		for _, call := range result.ToolCalls {
			fmt.Printf("  [工具] %s %s\n", call.Name, call.Arguments)
		}
		if result.Degraded {
			degraded++
			fmt.Println("  [降级] 模型调用失败")
		}
		fmt.Println("响应:", result.Message)
		fmt.Printf("Tokens: %d, 耗时: %v\n", result.TokensUsed, duration)
		fmt.Println("------------------------------------------------")
	}

	fmt.Println("\n========================================")
	fmt.Printf("  完成: %d 轮, %d tokens, %d 次降级\n", len(tests), totalTokens, degraded)
	fmt.Println("========================================")
}
