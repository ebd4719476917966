package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config — параметры подключения к S3-совместимому хранилищу.
type S3Config struct {
	// Endpoint — URL хранилища (пустой — стандартный AWS endpoint)
	Endpoint string
	// Region — регион
	Region string
	// Bucket — имя bucket'а
	Bucket string
	// AccessKey, SecretKey — статические учётные данные
	AccessKey string
	SecretKey string
}

// NewS3Client создаёт S3-клиент по конфигурации.
// Для не-AWS endpoint'ов (MinIO, Ceph) включается path-style адресация.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("загрузка конфигурации S3: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return client, nil
}

// S3Archive — архив в S3. Путь файла из БД используется как ключ объекта.
type S3Archive struct {
	client *s3.Client
	bucket string
}

// NewS3Archive создаёт S3-архив.
func NewS3Archive(client *s3.Client, bucket string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket}
}

// Open открывает поток тела объекта.
func (a *S3Archive) Open(ctx context.Context, filePath string) (io.ReadCloser, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(filePath),
	})
	if err != nil {
		return nil, fmt.Errorf("чтение объекта %s из архива: %w", filePath, err)
	}
	return out.Body, nil
}

// S3Outbox — outbox в S3. Ключ объекта: <user>/<filename>.
// В отличие от POSIX-outbox существующий объект перезаписывается.
type S3Outbox struct {
	uploader *manager.Uploader
	bucket   string
}

// NewS3Outbox создаёт S3-outbox.
func NewS3Outbox(client *s3.Client, bucket string) *S3Outbox {
	return &S3Outbox{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

// countingReader считает байты, прочитанные uploader'ом.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Write загружает файл в outbox пользователя потоково, без буферизации в памяти
// целиком (multipart upload через manager.Uploader).
func (o *S3Outbox) Write(ctx context.Context, user, filename string, r io.Reader) (int64, error) {
	counter := &countingReader{r: r}

	key := user + "/" + filename
	_, err := o.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
		Body:   counter,
	})
	if err != nil {
		return counter.n, fmt.Errorf("загрузка объекта %s в outbox: %w", key, err)
	}
	return counter.n, nil
}
