// 手动导入题库脚本
//
// 教师端也可以通过 /api/teacher/units/:unitId/questions/import 上传题库文件。
// 此脚本用于首次部署或批量迁移时直接从本地文件导入。
//
// 用法: go run scripts/seed_question_bank.go -unit 3 -file banks/unit3.yaml

package main

import (
	"context"
	"flag"
	"log"
	"mooc_exam_backend/internal/config"
	"mooc_exam_backend/internal/repository"
	"mooc_exam_backend/internal/service"
	"mooc_exam_backend/pkg/database"
	"mooc_exam_backend/pkg/logger"
	"mooc_exam_backend/pkg/storage"
	"path/filepath"
)

func main() {
	configDir := flag.String("config", "configs", "配置文件目录")
	unitID := flag.Uint("unit", 0, "目标单元ID")
	file := flag.String("file", "", "题库文件（.yaml/.yml/.json）")
	flag.Parse()

	if *unitID == 0 || *file == "" {
		log.Fatal("必须指定 -unit 和 -file")
	}

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode, false)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	defer database.Close(db)

	// 题库文件所在目录作为本地存储根目录，文件名即对象 key
	store := &storage.LocalProvider{Root: filepath.Dir(*file)}
	bank := service.NewQuestionBankService(
		db,
		repository.NewQuestionRepository(db),
		repository.NewExamRepository(db),
		store,
	)

	result, err := bank.Import(context.Background(), uint(*unitID), filepath.Base(*file))
	if err != nil {
		log.Fatalf("导入失败: %v", err)
	}
	log.Printf("完成！共导入 %d 道题目", result.Imported)
}
