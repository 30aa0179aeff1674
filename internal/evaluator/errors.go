package evaluator

import "errors"

// ErrPlanOrder 读数计划不满足时间顺序前提
var ErrPlanOrder = errors.New("readings plans are not chronologically consistent")

// ErrZeroPlanWeight 预期读数计算的加权分母为零
var ErrZeroPlanWeight = errors.New("expected reading count has zero total weight")
