// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"archive-view-go/internal/model"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// 后端类型
const (
	BackendBaseX = "basex"
	BackendMinIO = "minio"
	BackendIndex = "index"
	BackendFile  = "file"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Archives      ArchivesConfig      `mapstructure:"archives"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置，DSN 为空时不启用记录关联存储。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置，Addr 为空时不启用共享的资源列表缓存。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置，Brokers 为空时重新加载请求同步执行。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// ArchivesConfig 存储档案加载相关的配置。
type ArchivesConfig struct {
	Backend             string                `mapstructure:"backend"`
	CollapseLevel       int                   `mapstructure:"collapse_level"`
	ListingCacheSeconds int                   `mapstructure:"listing_cache_seconds"`
	BaseX               BaseXConfig           `mapstructure:"basex"`
	Index               IndexConfig           `mapstructure:"index"`
	File                FileConfig            `mapstructure:"file"`
	MetadataFields      []MetadataFieldConfig `mapstructure:"metadata_fields"`
}

// BaseXConfig 存储 BaseX REST 接口的配置。
type BaseXConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// IndexConfig 存储索引后端的配置。
type IndexConfig struct {
	DatabaseName string `mapstructure:"database_name"`
}

// FileConfig 存储本地目录后端的配置。
type FileConfig struct {
	Directory string `mapstructure:"directory"`
}

// MetadataFieldConfig 对应一条字段抽取模板。
type MetadataFieldConfig struct {
	Label      string `mapstructure:"label"`
	Area       int    `mapstructure:"area"`
	Expression string `mapstructure:"expression"`
	Result     string `mapstructure:"result"`
}

// FieldTemplates 将配置中的字段列表转换为抽取模板，并逐条校验。
func (c ArchivesConfig) FieldTemplates() ([]model.ArchiveMetadataField, error) {
	templates := make([]model.ArchiveMetadataField, 0, len(c.MetadataFields))
	for i, f := range c.MetadataFields {
		kind, err := model.ParseResultKind(f.Result)
		if err != nil {
			return nil, fmt.Errorf("metadata_fields[%d]: %w", i, err)
		}
		tpl := model.ArchiveMetadataField{
			Label:      strings.TrimSpace(f.Label),
			Area:       model.AreaType(f.Area),
			Expression: strings.TrimSpace(f.Expression),
			Result:     kind,
		}
		if err := tpl.Validate(); err != nil {
			return nil, fmt.Errorf("metadata_fields[%d]: %w", i, err)
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}

// DefaultMetadataFields 是未提供配置文件时使用的字段模板（命令行工具）。
var DefaultMetadataFields = []MetadataFieldConfig{
	{Label: "unitid", Area: 1, Expression: "ead:did/ead:unitid", Result: "text"},
	{Label: "unittitle", Area: 1, Expression: "ead:did/ead:unittitle", Result: "text"},
	{Label: "unitdate", Area: 1, Expression: "ead:did/ead:unitdate", Result: "text"},
	{Label: "descriptionLevel", Area: 1, Expression: "@level", Result: "attribute"},
	{Label: "origination", Area: 2, Expression: "ead:did/ead:origination", Result: "element"},
	{Label: "scopecontent", Area: 3, Expression: "ead:scopecontent", Result: "element"},
	{Label: "accessrestrict", Area: 4, Expression: "ead:accessrestrict", Result: "element"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.group_id", "archive-view-go-consumer")
	v.SetDefault("archives.backend", BackendBaseX)
	v.SetDefault("archives.collapse_level", 1)
	v.SetDefault("archives.basex.timeout_seconds", 30)
	v.SetDefault("archives.index.database_name", "index")
}

// Load 从指定路径读取 YAML 配置。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
